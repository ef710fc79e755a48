package progresssync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchModuleProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/progress/modules/5", r.URL.Path)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Client-Session"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": ModuleProgressResponse{
				Summary: ModuleProgress{CompletedLessons: 1, TotalLessons: 2, Percentage: 50},
				Lessons: []LessonRecord{{LessonID: 1, ModuleID: 5, Completed: true}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token123")
	resp, err := c.FetchModuleProgress(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 50, resp.Summary.Percentage)
	require.Len(t, resp.Lessons, 1)
	assert.True(t, resp.Lessons[0].Completed)
}

func TestClientPutLessonProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/progress/lesson/7", r.URL.Path)

		var req LessonUpdateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Progress)
		assert.Equal(t, 0.5, *req.Progress)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    LessonRecord{LessonID: 7, Progress: 0.5, UpdatedAt: time.Now()},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	rec, err := c.PutLessonProgress(context.Background(), 7, LessonUpdateRequest{
		Progress:     floatPtr(0.5),
		LastAccessed: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(7), rec.LessonID)
}

func TestClientClassifiesNetworkFailureAsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立即关掉，模拟网络不可达

	c := NewClient(srv.URL, "")
	_, err := c.FetchModuleProgress(context.Background(), 1)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestClientClassifiesRejectionAsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "progress out of range",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.PutLessonProgress(context.Background(), 1, LessonUpdateRequest{LastAccessed: time.Now()})

	var serr *ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusUnprocessableEntity, serr.StatusCode)
	assert.Equal(t, "progress out of range", serr.Message)
	assert.NotErrorIs(t, err, ErrOffline)
}

func TestClientSessionStable(t *testing.T) {
	c := NewClient("http://localhost:0", "")
	assert.NotEmpty(t, c.Session())
	assert.Equal(t, c.Session(), c.Session())
}
