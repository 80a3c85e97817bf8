package user

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// fakeRow implements pgx.Row over a fixed slice of values, letting scanUser be tested without a live connection.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("fakeRow: dest/value count mismatch")
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *uuid.UUID:
			*d = r.values[i].(uuid.UUID)
		case *string:
			*d = r.values[i].(string)
		case **string:
			*d = r.values[i].(*string)
		case *time.Time:
			*d = r.values[i].(time.Time)
		case **time.Time:
			*d = r.values[i].(*time.Time)
		default:
			return errors.New("fakeRow: unsupported dest type")
		}
	}
	return nil
}

func TestScanUser(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	now := time.Now()
	imageURL := "https://cdn.example.com/avatar.png"

	row := fakeRow{values: []any{id, "alice@example.com", "Alice", &imageURL, now, &now}}
	u, err := scanUser(row)
	if err != nil {
		t.Fatalf("scanUser() error = %v", err)
	}
	if u.ID != id {
		t.Errorf("ID = %v, want %v", u.ID, id)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want %q", u.DisplayName, "Alice")
	}
	if u.ImageURL == nil || *u.ImageURL != imageURL {
		t.Errorf("ImageURL = %v, want %q", u.ImageURL, imageURL)
	}
	if u.LastSeenAt == nil || !u.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt = %v, want %v", u.LastSeenAt, now)
	}
}

func TestScanUserNilableFields(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	now := time.Now()

	row := fakeRow{values: []any{id, "bob@example.com", "Bob", (*string)(nil), now, (*time.Time)(nil)}}
	u, err := scanUser(row)
	if err != nil {
		t.Fatalf("scanUser() error = %v", err)
	}
	if u.ImageURL != nil {
		t.Errorf("ImageURL = %v, want nil", u.ImageURL)
	}
	if u.LastSeenAt != nil {
		t.Errorf("LastSeenAt = %v, want nil", u.LastSeenAt)
	}
}

func TestScanUserPropagatesRowError(t *testing.T) {
	t.Parallel()

	wantErr := pgx.ErrNoRows
	row := fakeRow{err: wantErr}
	u, err := scanUser(row)
	if u != nil {
		t.Errorf("scanUser() user = %v, want nil", u)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("scanUser() error = %v, want wrapping %v", err, wantErr)
	}
}

func TestSelectColumnsListsAllFields(t *testing.T) {
	t.Parallel()

	for _, col := range []string{"id", "email", "display_name", "image_url", "created_at", "last_seen_at"} {
		if !containsWord(selectColumns, col) {
			t.Errorf("selectColumns = %q, missing column %q", selectColumns, col)
		}
	}
}

func containsWord(s, word string) bool {
	for _, part := range splitCSV(s) {
		if part == word {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			field := s[start:i]
			for len(field) > 0 && field[0] == ' ' {
				field = field[1:]
			}
			out = append(out, field)
			start = i + 1
		}
	}
	return out
}
