package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
)

// FavoriteRepo implements FavoriteRepository over the cep_user_pivot table.
type FavoriteRepo struct{ db *DB }

// NewFavoriteRepo constructs a favorites repository.
func NewFavoriteRepo(db *DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

// Exists reports whether user already bookmarked the record.
func (r *FavoriteRepo) Exists(ctx context.Context, userID uuid.UUID, recordID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM cep_user_pivot WHERE user_id=$1 AND cep_id=$2)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, recordID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Add inserts the association. The (user_id, cep_id) unique constraint turns a
// lost check-then-insert race into errs.ErrAlreadyExists.
func (r *FavoriteRepo) Add(ctx context.Context, userID uuid.UUID, recordID int64, nickname string) error {
	const q = `
INSERT INTO cep_user_pivot (user_id, cep_id, nickname)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, userID, recordID, nickname)
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		// The record was resolved just before; a dangling user is the only cause.
		return errs.ErrUnauthorized
	}
	return err
}

// Remove deletes the association.
func (r *FavoriteRepo) Remove(ctx context.Context, userID uuid.UUID, recordID int64) error {
	const q = `DELETE FROM cep_user_pivot WHERE user_id=$1 AND cep_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// List returns favorites ordered by insertion together with the user's total.
func (r *FavoriteRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Favorite, int, error) {
	const cnt = `SELECT count(*) FROM cep_user_pivot WHERE user_id=$1`
	var total int
	if err := r.db.Pool.QueryRow(ctx, cnt, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	out := []model.Favorite{}
	if total == 0 || offset >= total {
		return out, total, nil
	}

	const q = `
SELECT c.id, c.cep, c.logradouro, c.complemento, c.unidade, c.bairro, c.localidade, c.uf, c.estado,
       c.regiao, c.ibge, c.gia, c.ddd, c.siafi, c.created_at, c.updated_at,
       p.nickname, p.created_at, p.updated_at
FROM cep_user_pivot p
JOIN ceps c ON c.id = p.cep_id
WHERE p.user_id=$1
ORDER BY p.id ASC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		f := model.Favorite{UserID: userID}
		rec := &f.Record
		a := &rec.Attributes
		if err = rows.Scan(&rec.ID, &rec.Code,
			&a.Street, &a.Complement, &a.Unit, &a.Neighborhood, &a.Locality, &a.RegionCode,
			&a.RegionName, &a.MacroRegion, &a.IBGE, &a.GIA, &a.AreaCode, &a.SIAFI,
			&rec.CreatedAt, &rec.UpdatedAt,
			&f.Nickname, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}
