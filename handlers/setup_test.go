package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"poll-decision-backend/service"
	"poll-decision-backend/templates"
	"poll-decision-backend/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	fx     *testutil.Fixtures
}

// setupTestEnvironment wires the poll handler over an in-memory database.
func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	svc := service.New(service.Deps{
		DB:        db,
		Templates: templates.Default(),
		Log:       zap.NewNop(),
	}, service.DefaultOptions())

	router := gin.New()
	api := router.Group("/api")
	NewPollHandler(svc, zap.NewNop()).Register(api)
	health := NewHealthHandler(db, "test")
	api.GET("/health", health.Health)
	api.GET("/status", health.Status)

	return &testEnv{router: router, db: db, fx: testutil.NewFixtures(t, db)}
}

func (e *testEnv) do(t *testing.T, method, path string, actor uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != 0 {
		req.Header.Set(ActorHeader, strconv.FormatUint(uint64(actor), 10))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
