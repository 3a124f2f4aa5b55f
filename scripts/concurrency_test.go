//go:build ignore
// +build ignore

// Package main provides a manual concurrency check for implicit student creation.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> [workers]
//
// Or use the convenience environment variables:
//
//	BOOK_ID=<id>  WORKERS=8  STUDENT_NAME="Race Student"  STUDENT_CLASS=7C  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines that all create a loan for the same, not yet known
//     (name, class) pair at the same moment.
//  2. Prints how many loans were created.
//  3. Counts the students matching that pair. More than one means the
//     find-or-create step raced: nothing in the store enforces uniqueness.
//
// Prerequisites:
//   - Server must be running (SERVER_ADDR, default http://localhost:8080).
//   - The book must exist. Set AUTH_TOKEN when the server requires a bearer token.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type loanResult struct {
	Worker     int
	StatusCode int
	Err        error
}

type student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

func main() {
	serverAddr := envOr("SERVER_ADDR", defaultServerAddr)
	bookID := os.Getenv("BOOK_ID")
	workers, _ := strconv.Atoi(envOr("WORKERS", "8"))
	name := envOr("STUDENT_NAME", fmt.Sprintf("Race Student %d", time.Now().Unix()))
	class := envOr("STUDENT_CLASS", "7C")

	args := os.Args[1:]
	if len(args) >= 1 {
		bookID = args[0]
	}
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			workers = n
		}
	}
	if bookID == "" {
		log.Fatal("Usage: BOOK_ID=<id> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> [workers]")
	}
	if workers < 2 {
		workers = 2
	}

	fmt.Printf("=== Implicit Student Race Check ===\n")
	fmt.Printf("Server  : %s\n", serverAddr)
	fmt.Printf("Book    : %s\n", bookID)
	fmt.Printf("Student : %q / %q\n", name, class)
	fmt.Printf("Workers : %d\n\n", workers)

	results := make([]loanResult, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			// Vary the case so every request also exercises the case-insensitive match.
			studentName := name
			if idx%2 == 1 {
				studentName = strings.ToUpper(name)
			}
			results[idx] = createLoan(serverAddr, bookID, studentName, class, idx)
		}(i)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")

	var created, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] worker=%-3d err=%v\n", r.Worker, r.Err)
		case r.StatusCode == http.StatusCreated:
			created++
		default:
			failures++
			fmt.Printf("  [FAIL] worker=%-3d status=%d\n", r.Worker, r.StatusCode)
		}
	}

	matches, err := countStudents(serverAddr, name, class)
	if err != nil {
		log.Fatalf("list students: %v", err)
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Loans created    : %d\n", created)
	fmt.Printf("Failures         : %d\n", failures)
	fmt.Printf("Matching students: %d\n\n", matches)

	if matches > 1 {
		fmt.Println("[RACE] duplicate students were created for the same name and class.")
	} else {
		fmt.Println("[OK] a single student was shared by every loan.")
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func createLoan(serverAddr, bookID, name, class string, worker int) loanResult {
	body, _ := json.Marshal(map[string]string{"studentName": name, "studentClass": class, "bookId": bookID})
	req, err := http.NewRequest(http.MethodPost, serverAddr+"/loans", bytes.NewReader(body))
	if err != nil {
		return loanResult{Worker: worker, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return loanResult{Worker: worker, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return loanResult{Worker: worker, StatusCode: resp.StatusCode}
}

func countStudents(serverAddr, name, class string) (int, error) {
	req, err := http.NewRequest(http.MethodGet, serverAddr+"/students", nil)
	if err != nil {
		return 0, err
	}
	authorize(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var students []student
	if err := json.NewDecoder(resp.Body).Decode(&students); err != nil {
		return 0, err
	}
	n := 0
	for _, s := range students {
		if strings.EqualFold(s.Name, name) && strings.EqualFold(s.Class, class) {
			n++
		}
	}
	return n, nil
}

func authorize(req *http.Request) {
	if tok := os.Getenv("AUTH_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
