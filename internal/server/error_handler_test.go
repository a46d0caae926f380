package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/neo/battlearena/internal/battle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name           string
		handler        gin.HandlerFunc
		expectedStatus int
		expectedError  bool
		appEnv         string
	}{
		{
			name: "No error",
			handler: func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "With error",
			handler: func(c *gin.Context) {
				c.Error(errors.New("test error"))
				c.Status(http.StatusInternalServerError)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  true,
		},
		{
			name: "With error in development mode",
			handler: func(c *gin.Context) {
				c.Error(errors.New("test error"))
				c.Status(http.StatusInternalServerError)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  true,
			appEnv:         "development",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_ENV", tc.appEnv)

			router := gin.New()
			router.Use(RequestIDMiddleware())
			router.Use(ErrorHandler())
			router.GET("/test", tc.handler)

			req, err := http.NewRequest("GET", "/test", nil)
			require.NoError(t, err)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedError {
				assert.Contains(t, w.Body.String(), "error")
				if tc.appEnv == "development" {
					assert.Contains(t, w.Body.String(), "details")
				} else {
					assert.NotContains(t, w.Body.String(), "test error")
				}
			} else {
				assert.Contains(t, w.Body.String(), "ok")
			}
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("RequestID"))
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware())
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Error ErrorResponse `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Error.Status)
	assert.Equal(t, "/panic", body.Error.Path)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("APP_ENV", "")

	router := gin.New()
	router.GET("/domain", func(c *gin.Context) { respondError(c, battle.ErrBattleFull) })
	router.GET("/internal", func(c *gin.Context) { respondError(c, errors.New("sql: connection refused")) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/domain", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), battle.ErrBattleFull.Error())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
