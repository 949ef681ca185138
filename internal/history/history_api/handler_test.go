package history_api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/clock"
	"ms-settlement/internal/database/dbtest"
	"ms-settlement/internal/history/history_api"
	history "ms-settlement/internal/history/service"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

type envelope struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestAttendanceAndRating(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.SeedUser(t, db)
	event := dbtest.SeedEvent(t, db, models.EventFinished)
	svc := history.NewHistoryService(db, clock.NewFake(dbtest.Now), logger.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithUserID(req.Context(), user.ID)))
		})
	})
	r.Route("/api/v1", history_api.NewHandler(svc, logger.NewNop()).RegisterRoutes)

	rec, env := do(t, r, http.MethodPost, "/api/v1/history/rating", map[string]any{"event_id": event.ID, "rating": 4})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_history", env.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/history/attendance", map[string]any{"event_id": event.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = do(t, r, http.MethodPost, "/api/v1/history/rating", map[string]any{"event_id": event.ID, "rating": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_rating", env.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/history/rating", map[string]any{
		"event_id": event.ID, "rating": 5, "comment": "  great show ",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = do(t, r, http.MethodGet, "/api/v1/history/events/"+event.ID+"/users/"+user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.EventHistory
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.True(t, record.AttendanceConfirmed)
	assert.Equal(t, 5, record.Rating)
	assert.Equal(t, "great show", record.Comment)

	rec, env = do(t, r, http.MethodGet, "/api/v1/history/users/"+user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.EventHistory
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/history/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
