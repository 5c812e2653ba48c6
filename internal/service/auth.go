// Package service contains application services for postal code lookup, favorites and authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/justgu1/cepapi/internal/crypto"
	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/limiter"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/repository"
	"github.com/justgu1/cepapi/internal/revoke"
)

const tokenLeeway = 30 * time.Second

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new account.
	Register(ctx context.Context, name, email, password string) (model.User, error)
	// Login applies rate limiting by (email, ip) and issues an access token.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Authenticate verifies an access token and returns its session.
	Authenticate(ctx context.Context, token string) (model.Session, error)
	// Logout revokes the session's token until it expires.
	Logout(ctx context.Context, sess model.Session) error
	// User loads the account behind a session.
	User(ctx context.Context, id uuid.UUID) (model.User, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	hasher    *pkgcrypto.Hasher
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	revoked   revoke.Store
	log       *zap.Logger
}

// AuthDeps groups AuthService collaborators. Nil Revoked disables logout revocation.
type AuthDeps struct {
	Users     repository.UserRepository
	Hasher    *pkgcrypto.Hasher
	SignKey   []byte
	AccessTTL time.Duration
	Limiter   limiter.Limiter
	Revoked   revoke.Store
	Log       *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(d AuthDeps) *AuthServiceImpl {
	s := &AuthServiceImpl{
		users:     d.Users,
		hasher:    d.Hasher,
		signKey:   d.SignKey,
		accessTTL: d.AccessTTL,
		lim:       d.Limiter,
		revoked:   d.Revoked,
		log:       d.Log,
	}
	if s.hasher == nil {
		s.hasher = pkgcrypto.NewHasher(pkgcrypto.DefaultParams)
	}
	if s.accessTTL <= 0 {
		s.accessTTL = 24 * time.Hour
	}
	if s.revoked == nil {
		s.revoked = revoke.Noop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

type registerInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=255"`
}

// Register validates input, hashes the password with a per-user salt and stores the account.
// A taken email yields errs.ErrAlreadyExists.
func (s *AuthServiceImpl) Register(ctx context.Context, name, email, password string) (model.User, error) {
	in := registerInput{
		Name:     strings.TrimSpace(name),
		Email:    limiter.Key(email),
		Password: password,
	}
	if err := checkStruct(in); err != nil {
		return model.User{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, err
	}
	u := &model.User{
		ID:        uid,
		Name:      in.Name,
		Email:     in.Email,
		PwdHash:   hash,
		Salt:      salt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = limiter.Key(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if err != nil || !s.hasher.Verify(password, u.Salt, u.PwdHash) {
		blocked, _, ferr := s.lim.Failure(ctx, email, ipHash)
		if ferr != nil {
			s.log.Warn("limiter failure", zap.Error(ferr))
		}
		if blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}

	tok, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}

// issueAccessToken creates a signed HS256 JWT with a random jti.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (model.Tokens, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Authenticate verifies signature, time claims (30s leeway) and revocation.
// Every rejection is errs.ErrUnauthorized.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (model.Session, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return model.Session{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	if claims.ID == "" {
		return model.Session{}, fmt.Errorf("%w: missing jti", errs.ErrUnauthorized)
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		// revocation store outage must not lock everyone out
		s.log.Warn("revocation check", zap.Error(err))
	}
	if revoked {
		return model.Session{}, fmt.Errorf("%w: token revoked", errs.ErrUnauthorized)
	}
	return model.Session{UserID: id, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout denies the session's token for the rest of its lifetime.
func (s *AuthServiceImpl) Logout(ctx context.Context, sess model.Session) error {
	if sess.TokenID == "" {
		return errs.ErrUnauthorized
	}
	return s.revoked.Revoke(ctx, sess.TokenID, time.Until(sess.ExpiresAt)+tokenLeeway)
}

// User loads an account by ID.
func (s *AuthServiceImpl) User(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}
