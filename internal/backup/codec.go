// Package backup encodes snapshots as JSON backup documents and archives them.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"schoollibrary/internal/models"
)

// ErrFormat is wrapped by every error returned from Decode.
var ErrFormat = errors.New("invalid backup document")

// Encode renders the snapshot as an indented document that always carries
// all three arrays.
func Encode(snap models.Snapshot) ([]byte, error) {
	doc := snap.Clone()
	if doc.Books == nil {
		doc.Books = []models.Book{}
	}
	if doc.Students == nil {
		doc.Students = []models.Student{}
	}
	if doc.Loans == nil {
		doc.Loans = []models.Loan{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a backup document. books and loans must be present arrays;
// students may be absent. Nothing is returned unless the whole document is
// valid.
func Decode(data []byte) (models.Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var snap models.Snapshot
	if err := decodeArray(fields, "books", true, &snap.Books); err != nil {
		return models.Snapshot{}, err
	}
	if err := decodeArray(fields, "loans", true, &snap.Loans); err != nil {
		return models.Snapshot{}, err
	}
	if err := decodeArray(fields, "students", false, &snap.Students); err != nil {
		return models.Snapshot{}, err
	}
	if snap.Students == nil {
		snap.Students = []models.Student{}
	}
	return snap, nil
}

func decodeArray(fields map[string]json.RawMessage, key string, required bool, dst any) error {
	raw, ok := fields[key]
	if !ok {
		if required {
			return fmt.Errorf("%w: missing %q", ErrFormat, key)
		}
		return nil
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		return fmt.Errorf("%w: %q must be an array", ErrFormat, key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFormat, key, err)
	}
	return nil
}
