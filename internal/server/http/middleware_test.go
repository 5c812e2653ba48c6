package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/justgu1/cepapi/internal/model"
)

func Test_bearerToken(t *testing.T) {
	t.Parallel()

	got, ok := bearerToken("Bearer abc.def.ghi")
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", got)

	got, ok = bearerToken("  bearer   xyz ")
	require.True(t, ok)
	require.Equal(t, "xyz", got)

	for _, h := range []string{"", "Basic foo", "Bearer   ", "Bearer"} {
		_, ok := bearerToken(h)
		require.False(t, ok, h)
	}
}

func TestWithSession_And_SessionFromCtx(t *testing.T) {
	t.Parallel()

	_, ok := SessionFromCtx(context.Background())
	require.False(t, ok)

	want := model.Session{UserID: uuid.Must(uuid.NewV4()), TokenID: "jti"}
	got, ok := SessionFromCtx(WithSession(context.Background(), want))
	require.True(t, ok)
	require.Equal(t, want, got)

	bad := context.WithValue(context.Background(), sessionKey, "not-a-session")
	_, ok = SessionFromCtx(bad)
	require.False(t, ok)
}

func TestLogging_RecordsRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(Logging(zap.New(core)))
	r.GET("/api/cep/:code", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cep/01001000", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	entries := logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/api/cep/:code", fields["route"])
	require.EqualValues(t, http.StatusTeapot, fields["status"])
	require.Equal(t, http.MethodGet, fields["method"])
}

func TestRecover_LogsPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)

	r := gin.New()
	r.Use(Recover(zap.New(core)))
	r.GET("/boom", func(*gin.Context) { panic("oh no") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.FilterMessage("panic").Len())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
