package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/zipcode"
)

const cepColumns = `id, cep, logradouro, complemento, unidade, bairro, localidade, uf, estado, regiao, ibge, gia, ddd, siafi, created_at, updated_at`

// CepRepo implements CepRepository using PostgreSQL.
type CepRepo struct{ db *DB }

// NewCepRepo constructs a postal record repository.
func NewCepRepo(db *DB) *CepRepo { return &CepRepo{db: db} }

// FindByCode selects a record by its canonical code.
func (r *CepRepo) FindByCode(ctx context.Context, code zipcode.Code) (*model.PostalRecord, error) {
	const q = `
SELECT ` + cepColumns + `
FROM ceps WHERE cep=$1`
	rec, err := scanRecord(r.db.Pool.QueryRow(ctx, q, string(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Upsert writes every attribute of code in one statement; attributes absent from
// attrs overwrite previous values with NULL.
func (r *CepRepo) Upsert(ctx context.Context, code zipcode.Code, a model.Attributes) (*model.PostalRecord, error) {
	const q = `
INSERT INTO ceps (cep, logradouro, complemento, unidade, bairro, localidade, uf, estado, regiao, ibge, gia, ddd, siafi)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (cep) DO UPDATE SET
  logradouro=EXCLUDED.logradouro, complemento=EXCLUDED.complemento, unidade=EXCLUDED.unidade,
  bairro=EXCLUDED.bairro, localidade=EXCLUDED.localidade, uf=EXCLUDED.uf, estado=EXCLUDED.estado,
  regiao=EXCLUDED.regiao, ibge=EXCLUDED.ibge, gia=EXCLUDED.gia, ddd=EXCLUDED.ddd, siafi=EXCLUDED.siafi,
  updated_at=now()
RETURNING ` + cepColumns
	row := r.db.Pool.QueryRow(ctx, q, string(code),
		a.Street, a.Complement, a.Unit, a.Neighborhood, a.Locality, a.RegionCode,
		a.RegionName, a.MacroRegion, a.IBGE, a.GIA, a.AreaCode, a.SIAFI)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*model.PostalRecord, error) {
	var rec model.PostalRecord
	a := &rec.Attributes
	if err := row.Scan(&rec.ID, &rec.Code,
		&a.Street, &a.Complement, &a.Unit, &a.Neighborhood, &a.Locality, &a.RegionCode,
		&a.RegionName, &a.MacroRegion, &a.IBGE, &a.GIA, &a.AreaCode, &a.SIAFI,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
