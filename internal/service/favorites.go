package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/repository"
	"github.com/justgu1/cepapi/internal/zipcode"
)

const (
	// DefaultPerPage is used when the caller does not ask for a page size.
	DefaultPerPage = 15
	// DefaultMaxPerPage caps the page size when none is configured.
	DefaultMaxPerPage = 100
)

// FavoriteService manages a user's bookmarked postal codes.
type FavoriteService interface {
	// Add resolves raw through LookupService and bookmarks it under nickname.
	Add(ctx context.Context, userID uuid.UUID, raw, nickname string) error
	// Remove deletes the bookmark for raw.
	Remove(ctx context.Context, userID uuid.UUID, raw string) error
	// List returns one page of bookmarks in the order they were added.
	List(ctx context.Context, userID uuid.UUID, page, perPage int) (model.FavoritePage, error)
}

type FavoriteServiceImpl struct {
	lookup     LookupService
	store      repository.CepRepository
	favs       repository.FavoriteRepository
	maxPerPage int
	log        *zap.Logger
}

// NewFavoriteService constructs FavoriteService. maxPerPage <= 0 selects DefaultMaxPerPage.
func NewFavoriteService(lookup LookupService, store repository.CepRepository, favs repository.FavoriteRepository, maxPerPage int, log *zap.Logger) *FavoriteServiceImpl {
	if maxPerPage <= 0 {
		maxPerPage = DefaultMaxPerPage
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FavoriteServiceImpl{lookup: lookup, store: store, favs: favs, maxPerPage: maxPerPage, log: log}
}

type addFavoriteInput struct {
	Nickname string `json:"nickname" validate:"required,max=255,nocontrol"`
}

// Add validates the nickname, resolves the code (populating the store on a miss) and
// inserts the association. An existing association is left untouched and yields
// errs.ErrAlreadyExists.
func (s *FavoriteServiceImpl) Add(ctx context.Context, userID uuid.UUID, raw, nickname string) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	in := addFavoriteInput{Nickname: strings.TrimSpace(nickname)}
	if err := checkStruct(in); err != nil {
		return err
	}

	rec, err := s.lookup.Inspect(ctx, raw)
	if err != nil {
		return err
	}

	exists, err := s.favs.Exists(ctx, userID, rec.ID)
	if err != nil {
		return fmt.Errorf("favorite exists: %w", err)
	}
	if exists {
		return errs.ErrAlreadyExists
	}
	if err := s.favs.Add(ctx, userID, rec.ID, in.Nickname); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("favorite add: %w", err)
	}
	s.log.Debug("favorite added", zap.String("user_id", userID.String()), zap.String("cep", rec.Code))
	return nil
}

// Remove deletes the association for raw. It never calls the provider: a code absent
// from the store cannot be a favorite.
func (s *FavoriteServiceImpl) Remove(ctx context.Context, userID uuid.UUID, raw string) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	code, err := zipcode.Normalize(raw)
	if err != nil {
		return err
	}
	rec, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	return s.favs.Remove(ctx, userID, rec.ID)
}

// List clamps page and perPage and returns that slice of the user's favorites.
// Pages past the end are empty but still report the total.
func (s *FavoriteServiceImpl) List(ctx context.Context, userID uuid.UUID, page, perPage int) (model.FavoritePage, error) {
	if userID == uuid.Nil {
		return model.FavoritePage{}, errs.ErrUnauthorized
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > s.maxPerPage {
		perPage = s.maxPerPage
	}

	offset := math.MaxInt32
	if page-1 <= math.MaxInt32/perPage {
		offset = (page - 1) * perPage
	}
	items, total, err := s.favs.List(ctx, userID, perPage, offset)
	if err != nil {
		return model.FavoritePage{}, fmt.Errorf("favorite list: %w", err)
	}
	return model.FavoritePage{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    LastPage(total, perPage),
		Items:       items,
	}, nil
}

// LastPage returns ceil(total/perPage), never less than 1.
func LastPage(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
