package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/middleware"
	"team-meetings/internal/repository/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubResolver struct{}

func (stubResolver) ResolveToken(_ context.Context, token string) (*domain.User, error) {
	if token == "good" {
		return &domain.User{ID: 9, Username: "ivy"}, nil
	}
	return nil, errors.New("bad token")
}

func init() { gin.SetMode(gin.TestMode) }

func TestAuth(t *testing.T) {
	router := gin.New()
	router.GET("/me", middleware.Auth(stubResolver{}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.MustGet(middleware.ContextUserID)})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.status == http.StatusOK {
				assert.Equal(t, float64(9), body["id"])
			} else {
				assert.NotEmpty(t, body["message"])
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, err := middleware.BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = middleware.BearerToken("bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = middleware.BearerToken("")
	assert.ErrorIs(t, err, middleware.ErrMissingAuthHeader)

	for _, header := range []string{"Basic abc", "Bearer", "Bearer ", "Bearer a b", "abc"} {
		_, err := middleware.BearerToken(header)
		assert.ErrorIs(t, err, middleware.ErrMalformedAuthHeader, header)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := new(mocks.RateLimiter)
	router := gin.New()
	router.GET("/ping", middleware.RateLimit(limiter, 2, time.Minute), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	limiter.On("Allow", mock.Anything, mock.AnythingOfType("string"), 2, time.Minute).Return(true, nil).Once()
	limiter.On("Allow", mock.Anything, mock.AnythingOfType("string"), 2, time.Minute).Return(false, nil).Once()
	limiter.On("Allow", mock.Anything, mock.AnythingOfType("string"), 2, time.Minute).Return(false, errors.New("redis down")).Once()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}

	// 存储故障时放行
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}, codes)
	limiter.AssertExpectations(t)
}
