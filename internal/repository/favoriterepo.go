package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/justgu1/cepapi/internal/model"
)

// FavoriteRepository stores user bookmarks of postal records.
type FavoriteRepository interface {
	// Exists reports whether the (user, record) association is present.
	Exists(ctx context.Context, userID uuid.UUID, recordID int64) (bool, error)

	// Add inserts the association; a duplicate pair yields errs.ErrAlreadyExists
	// and an unknown user errs.ErrUnauthorized.
	Add(ctx context.Context, userID uuid.UUID, recordID int64, nickname string) error

	// Remove deletes the association; a missing pair yields errs.ErrNotFound.
	Remove(ctx context.Context, userID uuid.UUID, recordID int64) error

	// List returns a page of favorites in insertion order and the user's total count.
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Favorite, int, error)
}
