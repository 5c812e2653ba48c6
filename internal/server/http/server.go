// Package httpserver exposes the postal code lookup and favorites API over HTTP/JSON.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/service"
)

const (
	msgServerError     = "Server Error"
	msgUnauthenticated = "Unauthenticated."
	msgNotFound        = "ZIP code not found or invalid"
	msgInvalidFormat   = "Invalid ZIP code format"
	msgAlreadyFavorite = "ZIP code already in favorites"
	msgAdded           = "ZIP code added to favorites"
	msgRemoved         = "ZIP code removed from favorites"
	msgNotFavorite     = "ZIP code not found in favorites"
	msgEmailTaken      = "The email has already been taken."
	msgBadCredentials  = "Invalid credentials"
	msgRateLimited     = "Too many login attempts. Please try again later."
	msgMalformedBody   = "Malformed JSON body"

	// statusClientClosed is logged when the caller went away before the response.
	statusClientClosed = 499
)

// Server wires services into gin handlers.
type Server struct {
	auth   service.AuthService
	lookup service.LookupService
	favs   service.FavoriteService
	log    *zap.Logger
}

// New constructs a Server. A nil logger discards output.
func New(auth service.AuthService, lookup service.LookupService, favs service.FavoriteService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, lookup: lookup, favs: favs, log: log}
}

// Options tune the router.
type Options struct {
	// CORSOrigins lists allowed origins; "*" or empty allows any.
	CORSOrigins []string
}

// Router builds the gin engine with every route mounted under /api.
func (s *Server) Router(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(Recover(s.log), Logging(s.log), cors.New(corsConfig(opts.CORSOrigins)))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
	})

	api := r.Group("/api")
	api.GET("/healthy", s.healthy)
	api.GET("/cep/:code", s.inspect)
	api.POST("/register", s.register)
	api.POST("/login", s.login)

	authed := api.Group("", RequireAuth(s.auth))
	authed.POST("/favorite/:code", s.addFavorite)
	authed.DELETE("/favorite/:code", s.removeFavorite)
	authed.GET("/my-list", s.listFavorites)
	authed.POST("/logout", s.logout)
	authed.GET("/user", s.user)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) healthy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "API OK"})
}

// --- Lookup ---

func (s *Server) inspect(c *gin.Context) {
	rec, err := s.lookup.Inspect(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Favorites ---

type favoriteRequest struct {
	Nickname string `json:"nickname"`
}

func (s *Server) addFavorite(c *gin.Context) {
	sess, _ := SessionFromCtx(c.Request.Context())
	var req favoriteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	err := s.favs.Add(c.Request.Context(), sess.UserID, c.Param("code"), req.Nickname)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgUnauthenticated})
		return
	default:
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgAdded})
}

func (s *Server) removeFavorite(c *gin.Context) {
	sess, _ := SessionFromCtx(c.Request.Context())
	err := s.favs.Remove(c.Request.Context(), sess.UserID, c.Param("code"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": msgRemoved})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": msgNotFavorite})
	default:
		s.writeError(c, err)
	}
}

type favoriteView struct {
	model.PostalRecord
	Nickname string `json:"nickname"`
}

type favoritePageView struct {
	Total       int            `json:"total"`
	PerPage     int            `json:"per_page"`
	CurrentPage int            `json:"current_page"`
	LastPage    int            `json:"last_page"`
	Favorites   []favoriteView `json:"favorites"`
}

func (s *Server) listFavorites(c *gin.Context) {
	sess, _ := SessionFromCtx(c.Request.Context())
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))

	p, err := s.favs.List(c.Request.Context(), sess.UserID, page, perPage)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := favoritePageView{
		Total:       p.Total,
		PerPage:     p.PerPage,
		CurrentPage: p.CurrentPage,
		LastPage:    p.LastPage,
		Favorites:   make([]favoriteView, 0, len(p.Items)),
	}
	for _, f := range p.Items {
		out.Favorites = append(out.Favorites, favoriteView{PostalRecord: f.Record, Nickname: f.Nickname})
	}
	c.JSON(http.StatusOK, out)
}

// --- Auth ---

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u model.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	u, err := s.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"message": msgEmailTaken})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserView(u))
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	tok, _, err := s.auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   tok.ExpiresAt.UTC(),
	})
}

func (s *Server) logout(c *gin.Context) {
	sess, _ := SessionFromCtx(c.Request.Context())
	if err := s.auth.Logout(c.Request.Context(), sess); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) user(c *gin.Context) {
	sess, _ := SessionFromCtx(c.Request.Context())
	u, err := s.auth.User(c.Request.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// token outlived its account
			c.JSON(http.StatusUnauthorized, gin.H{"message": msgUnauthenticated})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserView(u))
}

// bindOptionalJSON decodes the body into dst; an empty body leaves dst zero.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": msgMalformedBody})
	return false
}

// writeError maps service errors to HTTP responses in one place.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": firstMessage(ve), "errors": ve.Fields})
	case errors.Is(err, errs.ErrInvalidFormat):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": msgInvalidFormat})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": msgNotFound})
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"message": msgAlreadyFavorite})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgBadCredentials})
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": msgRateLimited})
	case errors.Is(err, context.Canceled):
		s.log.Debug("client went away", zap.String("path", c.Request.URL.Path))
		c.AbortWithStatus(statusClientClosed)
	default:
		s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgServerError})
	}
}

func firstMessage(ve *errs.ValidationError) string {
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "The given data was invalid."
	}
	sort.Strings(keys)
	return ve.Fields[keys[0]][0]
}
