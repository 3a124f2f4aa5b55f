package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"schoollibrary/internal/backup"
	"schoollibrary/internal/database"
	"schoollibrary/internal/metrics"
	"schoollibrary/internal/models"
	"schoollibrary/internal/repositories"
	"schoollibrary/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestRouter(t *testing.T, opts ...services.Option) (*gin.Engine, *time.Time) {
	t.Helper()
	db, err := database.OpenSQLite("file::memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := metrics.New()
	svc := services.NewLibraryService(db,
		repositories.NewBookRepository(db),
		repositories.NewStudentRepository(db),
		repositories.NewLoanRepository(db),
		append([]services.Option{
			services.WithClock(func() time.Time { return now }),
			services.WithMetrics(m),
		}, opts...)...,
	)
	if err := svc.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return NewRouter(svc, RouterConfig{Metrics: m}), &now
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestLoanFlowOverHTTP(t *testing.T) {
	r, now := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/books", map[string]any{
		"title": "Dune", "author": "Frank Herbert", "hasCollection": true, "collectionName": "Dune Chronicles",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: %d %s", rec.Code, rec.Body.String())
	}
	book := decode[models.Book](t, rec)
	if name, ok := book.Collection.Value(); !ok || name != "Dune Chronicles" {
		t.Fatalf("collection lost: %+v", book)
	}

	rec = doJSON(t, r, http.MethodPost, "/loans", map[string]string{
		"studentName": "Ana Silva", "studentClass": "9A", "bookId": book.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create loan: %d %s", rec.Code, rec.Body.String())
	}
	loan := decode[models.Loan](t, rec)
	if !loan.DueDate.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date %s", loan.DueDate)
	}

	students := decode[[]models.Student](t, doJSON(t, r, http.MethodGet, "/students", nil))
	if len(students) != 1 || students[0].Name != "Ana Silva" {
		t.Fatalf("implicit student missing: %+v", students)
	}

	*now = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	views := decode[[]services.LoanView](t, doJSON(t, r, http.MethodGet, "/loans", nil))
	if len(views) != 1 || views[0].Status != models.LoanStatusOverdue || views[0].DaysOverdue != 2 {
		t.Fatalf("expected overdue loan: %+v", views)
	}

	rec = doJSON(t, r, http.MethodPost, "/loans/"+loan.ID+"/return", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("return: %d %s", rec.Code, rec.Body.String())
	}
	returned := decode[models.Loan](t, rec)
	if returned.ReturnDate == nil || !returned.ReturnDate.Equal(*now) {
		t.Fatalf("unexpected return date %+v", returned.ReturnDate)
	}

	dash := decode[map[string]any](t, doJSON(t, r, http.MethodGet, "/dashboard", nil))
	if dash["totalLoans"].(float64) != 1 || dash["returnedLoans"].(float64) != 1 {
		t.Fatalf("unexpected dashboard %v", dash)
	}

	rec = doJSON(t, r, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), "library_loans_created_total 1") {
		t.Fatalf("metrics missing loan counter:\n%s", rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing fields", http.MethodPost, "/loans", map[string]string{"studentName": "Ana"}, http.StatusBadRequest},
		{"unknown book", http.MethodPost, "/loans", map[string]string{"studentName": "Ana", "studentClass": "9A", "bookId": "nope"}, http.StatusBadRequest},
		{"blank student", http.MethodPost, "/loans", map[string]string{"studentName": " ", "studentClass": "9A", "bookId": "nope"}, http.StatusBadRequest},
		{"collection toggle without name", http.MethodPost, "/books", map[string]any{"title": "x", "author": "y", "hasCollection": true}, http.StatusBadRequest},
		{"return missing loan", http.MethodPost, "/loans/nope/return", nil, http.StatusNotFound},
		{"update missing book", http.MethodPut, "/books/nope", map[string]any{"title": "x", "author": "y"}, http.StatusNotFound},
		{"update missing student", http.MethodPut, "/students/nope", map[string]string{"name": "x", "class": "y"}, http.StatusNotFound},
		{"bad import", http.MethodPost, "/backup/import", `{"books": []}`, http.StatusBadRequest},
		{"archive disabled", http.MethodPost, "/backup/archive", nil, http.StatusServiceUnavailable},
		{"delete missing loan", http.MethodDelete, "/loans/nope", nil, http.StatusNoContent},
	}
	for _, tc := range cases {
		if rec := doJSON(t, r, tc.method, tc.path, tc.body); rec.Code != tc.want {
			t.Fatalf("%s: got %d want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}

	archived, _ := newTestRouter(t, services.WithArchive(emptyArchive{}))
	for _, key := range []string{"backups/missing.json", "elsewhere/x.json"} {
		rec := doJSON(t, archived, http.MethodPost, "/backup/archives/restore", map[string]string{"key": key})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("restore archive %s: got %d want 404 (%s)", key, rec.Code, rec.Body.String())
		}
	}
}

// emptyArchive holds no documents under the backups/ prefix.
type emptyArchive struct{}

func (emptyArchive) Put(context.Context, time.Time, []byte) (string, error) {
	return "", errors.New("read-only")
}

func (emptyArchive) Get(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", backup.ErrArchiveKey, key)
}

func (emptyArchive) List(context.Context) ([]backup.ArchiveEntry, error) {
	return nil, nil
}

func TestBarcodeToggleOffDiscardsValue(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/books", map[string]any{
		"title": "Emma", "author": "Austen", "hasBarcode": false, "barcode": "ignored",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: %d %s", rec.Code, rec.Body.String())
	}
	if book := decode[models.Book](t, rec); book.Barcode.IsSet() {
		t.Fatalf("barcode should be discarded when toggle is off: %+v", book)
	}
}

func TestExportImportOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/books", map[string]any{"title": "Dune", "author": "Herbert"})

	rec := doJSON(t, r, http.MethodGet, "/backup/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="library-backup-2024-01-01.json"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	doc := rec.Body.String()

	other, _ := newTestRouter(t)
	rec = doJSON(t, other, http.MethodPost, "/backup/restore", doc)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", rec.Code, rec.Body.String())
	}
	books := decode[[]models.Book](t, doJSON(t, other, http.MethodGet, "/books", nil))
	if len(books) != 1 || books[0].Title != "Dune" {
		t.Fatalf("restore did not persist books: %+v", books)
	}

	rec = doJSON(t, other, http.MethodPost, "/backup/import", `{"books": [], "loans": []}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rec.Code, rec.Body.String())
	}
	snap := decode[models.Snapshot](t, doJSON(t, other, http.MethodGet, "/snapshot", nil))
	if len(snap.Books) != 0 {
		t.Fatalf("import should replace the snapshot: %+v", snap)
	}
	snap = decode[models.Snapshot](t, doJSON(t, other, http.MethodPost, "/reload", nil))
	if len(snap.Books) != 1 {
		t.Fatalf("reload should bring back stored books: %+v", snap)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	if rec := doJSON(t, r, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}
