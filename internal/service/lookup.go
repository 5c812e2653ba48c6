package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/repository"
	"github.com/justgu1/cepapi/internal/viacep"
	"github.com/justgu1/cepapi/internal/zipcode"
)

// Fetcher resolves a digits-only postal code against the external provider.
type Fetcher interface {
	Fetch(ctx context.Context, digits string) (*viacep.Payload, error)
}

// LookupService resolves postal codes through the local store, falling back to the provider.
type LookupService interface {
	// Inspect normalizes raw and returns the stored record, fetching and persisting it on a miss.
	// Malformed input yields errs.ErrInvalidFormat; an unresolvable code yields errs.ErrNotFound.
	Inspect(ctx context.Context, raw string) (*model.PostalRecord, error)
}

type LookupServiceImpl struct {
	store    repository.CepRepository
	upstream Fetcher
	log      *zap.Logger
	group    singleflight.Group
}

// NewLookupService constructs LookupService. A nil logger discards output.
func NewLookupService(store repository.CepRepository, upstream Fetcher, log *zap.Logger) *LookupServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &LookupServiceImpl{store: store, upstream: upstream, log: log}
}

// Inspect implements the read-through path. A stored record is returned as is and never refreshed.
func (s *LookupServiceImpl) Inspect(ctx context.Context, raw string) (*model.PostalRecord, error) {
	code, err := zipcode.Normalize(raw)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.FindByCode(ctx, code)
	switch {
	case err == nil:
		s.log.Debug("cep cache hit", zap.String("cep", code.String()))
		return rec, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("find %s: %w", code, err)
	}

	// Concurrent misses for one code share a single fetch and upsert. The shared call
	// outlives any one caller's cancellation; each caller still stops waiting on its own ctx.
	ch := s.group.DoChan(code.String(), func() (any, error) {
		return s.resolve(context.WithoutCancel(ctx), code)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*model.PostalRecord)
		return &cp, nil
	}
}

func (s *LookupServiceImpl) resolve(ctx context.Context, code zipcode.Code) (*model.PostalRecord, error) {
	s.log.Debug("cep cache miss", zap.String("cep", code.String()))

	p, err := s.upstream.Fetch(ctx, code.Digits())
	if err != nil {
		if errors.Is(err, errs.ErrLookupFailed) {
			s.log.Warn("cep lookup failed", zap.String("cep", code.String()), zap.Error(err))
			return nil, fmt.Errorf("%s: %w", code, errs.ErrNotFound)
		}
		return nil, err
	}

	rec, err := s.store.Upsert(ctx, code, p.Attributes())
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", code, err)
	}
	return rec, nil
}
