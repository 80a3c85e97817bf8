package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the user package.
var ErrNotFound = errors.New("user not found")

// User holds the identity fields synced from the external identity provider.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	ImageURL    *string
	CreatedAt   time.Time
	LastSeenAt  *time.Time
}

// SyncParams groups the inputs for upserting a user from a verified JWT claim set. ID is the token's subject: the
// row is created with this as its primary key on first sync so that the principal parsed from later tokens
// (auth.Principal.UserID, taken straight from the same subject claim) resolves to this exact row.
type SyncParams struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	ImageURL    *string
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	// Sync upserts a user row keyed by email, returning the resulting row. Called on every successful
	// authentication so that display name or avatar changes at the identity provider propagate without a
	// separate profile-edit flow. The row's id is fixed to params.ID on first insert and never changed afterward.
	Sync(ctx context.Context, params SyncParams) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
}
