package conversation

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateCreateDirect(t *testing.T) {
	t.Parallel()

	other := uuid.New()

	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{"exactly one other member", CreateParams{UserIDs: []uuid.UUID{other}, IsGroup: false}, nil},
		{"no other members", CreateParams{UserIDs: nil, IsGroup: false}, ErrDirectMemberCount},
		{"two other members", CreateParams{UserIDs: []uuid.UUID{other, uuid.New()}, IsGroup: false}, ErrDirectMemberCount},
		{"name not allowed", CreateParams{UserIDs: []uuid.UUID{other}, IsGroup: false, Name: ptr("nope")}, ErrNameNotAllowed},
		{"blank name is tolerated", CreateParams{UserIDs: []uuid.UUID{other}, IsGroup: false, Name: ptr("   ")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			name, err := ValidateCreate(tt.params)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateCreate() error = %v, want nil", err)
				}
				if name != nil {
					t.Errorf("ValidateCreate() name = %v, want nil for direct conversation", *name)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCreate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCreateGroup(t *testing.T) {
	t.Parallel()

	twoOthers := []uuid.UUID{uuid.New(), uuid.New()}

	tests := []struct {
		name     string
		params   CreateParams
		wantErr  error
		wantName string
	}{
		{"two others with name", CreateParams{UserIDs: twoOthers, IsGroup: true, Name: ptr("Team")}, nil, "Team"},
		{"one other member", CreateParams{UserIDs: []uuid.UUID{uuid.New()}, IsGroup: true, Name: ptr("Team")}, ErrGroupMemberCount, ""},
		{"missing name", CreateParams{UserIDs: twoOthers, IsGroup: true}, ErrNameLength, ""},
		{"whitespace only name", CreateParams{UserIDs: twoOthers, IsGroup: true, Name: ptr("   ")}, ErrNameLength, ""},
		{"name too long", CreateParams{UserIDs: twoOthers, IsGroup: true, Name: ptr(strings.Repeat("a", 101))}, ErrNameLength, ""},
		{"name trimmed", CreateParams{UserIDs: twoOthers, IsGroup: true, Name: ptr("  Team  ")}, nil, "Team"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			name, err := ValidateCreate(tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateCreate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateCreate() error = %v, want nil", err)
			}
			if name == nil || *name != tt.wantName {
				t.Errorf("ValidateCreate() name = %v, want %q", name, tt.wantName)
			}
		})
	}
}

func ptr(s string) *string { return &s }
