// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Attributes is the fixed address vocabulary resolved for a postal code.
// A nil field means the provider did not return it; it is persisted as NULL.
type Attributes struct {
	Street       *string `json:"logradouro"`
	Complement   *string `json:"complemento"`
	Unit         *string `json:"unidade"`
	Neighborhood *string `json:"bairro"`
	Locality     *string `json:"localidade"`
	RegionCode   *string `json:"uf"`
	RegionName   *string `json:"estado"`
	MacroRegion  *string `json:"regiao"`
	IBGE         *string `json:"ibge"`
	GIA          *string `json:"gia"`
	AreaCode     *string `json:"ddd"`
	SIAFI        *string `json:"siafi"`
}

// PostalRecord is one cached postal code row.
type PostalRecord struct {
	ID   int64  `json:"-"`
	Code string `json:"cep"` // canonical NNNNN-NNN, unique
	Attributes
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Favorite is a user's bookmark of a postal record under a nickname.
type Favorite struct {
	UserID    uuid.UUID
	Record    PostalRecord
	Nickname  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FavoritePage is a slice of a user's favorites with pagination metadata.
type FavoritePage struct {
	Total       int
	PerPage     int
	CurrentPage int
	LastPage    int
	Items       []Favorite
}

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID        uuid.UUID // PK
	Name      string
	Email     string // unique
	PwdHash   []byte // Argon2id(password, Salt)
	Salt      []byte // per-user auth salt
	CreatedAt time.Time
}

// Session identifies the access token an authenticated request was made with.
type Session struct {
	UserID    uuid.UUID
	TokenID   string // jti
	ExpiresAt time.Time
}
