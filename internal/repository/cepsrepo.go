package repository

import (
	"context"

	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/zipcode"
)

// CepRepository is the durable store of resolved postal codes, keyed by canonical code.
type CepRepository interface {
	// FindByCode returns the record for code or errs.ErrNotFound.
	FindByCode(ctx context.Context, code zipcode.Code) (*model.PostalRecord, error)

	// Upsert inserts or fully replaces the attributes of code and returns the stored row.
	Upsert(ctx context.Context, code zipcode.Code, attrs model.Attributes) (*model.PostalRecord, error)
}
