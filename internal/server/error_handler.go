package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/neo/battlearena/internal/battle"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/metrics"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status     int       `json:"status"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Path       string    `json:"path"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DevMessage string    `json:"-"` // For logging only, not sent to client
}

// apiError pairs a domain error with the response it maps to
type apiError struct {
	status int
	code   string
}

var errorTable = []struct {
	err error
	apiError
}{
	{battle.ErrNoActiveBattle, apiError{http.StatusNotFound, "no_active_battle"}},
	{database.ErrNotFound, apiError{http.StatusNotFound, "not_found"}},
	{battle.ErrAlreadyJoined, apiError{http.StatusConflict, "already_joined"}},
	{battle.ErrAlreadySubmitted, apiError{http.StatusConflict, "already_submitted"}},
	{battle.ErrBattleFull, apiError{http.StatusConflict, "battle_full"}},
	{battle.ErrBattleInProgress, apiError{http.StatusConflict, "battle_in_progress"}},
	{battle.ErrGenerationInProgress, apiError{http.StatusConflict, "generation_in_progress"}},
	{database.ErrDuplicate, apiError{http.StatusConflict, "duplicate"}},
	{battle.ErrMustJoin, apiError{http.StatusForbidden, "must_join"}},
	{battle.ErrInvalidSide, apiError{http.StatusBadRequest, "invalid_side"}},
	{battle.ErrEmptyContent, apiError{http.StatusBadRequest, "empty_content"}},
	{battle.ErrContentTooLong, apiError{http.StatusBadRequest, "content_too_long"}},
	{battle.ErrInvalidUser, apiError{http.StatusBadRequest, "invalid_user"}},
	{battle.ErrCoolingDown, apiError{http.StatusTooManyRequests, "cooling_down"}},
	{battle.ErrNoTopic, apiError{http.StatusServiceUnavailable, "no_topic"}},
}

// statusForError maps a domain error to an HTTP status and error code
func statusForError(err error) (int, string) {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.status, entry.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes the error envelope for err. Server errors keep their
// details out of the response and in the log.
func respondError(c *gin.Context, err error) {
	status, code := statusForError(err)
	response := ErrorResponse{
		Status:    status,
		Message:   err.Error(),
		Path:      c.Request.URL.Path,
		Timestamp: time.Now(),
		RequestID: c.GetString("RequestID"),
		ErrorCode: code,
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logging.Error("Request failed", map[string]interface{}{
			"path":       response.Path,
			"request_id": response.RequestID,
			"error":      err.Error(),
		})
		response.Message = "An error occurred while processing your request"
		if os.Getenv("APP_ENV") == "development" {
			response.Details = err.Error()
		}
	}

	c.AbortWithStatusJSON(status, gin.H{"error": response})
}

// badRequest rejects a malformed body or parameter
func badRequest(c *gin.Context, message string, err error) {
	response := ErrorResponse{
		Status:    http.StatusBadRequest,
		Message:   message,
		Path:      c.Request.URL.Path,
		Timestamp: time.Now(),
		RequestID: c.GetString("RequestID"),
		ErrorCode: "bad_request",
	}
	if err != nil {
		response.Details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": response})
}

// ErrorHandler middleware for errors attached with c.Error
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := c.Writer.Status()
		if status < 400 {
			status = http.StatusInternalServerError
		}

		errorResponse := ErrorResponse{
			Status:    status,
			Message:   "An error occurred while processing your request",
			Path:      c.Request.URL.Path,
			Timestamp: time.Now(),
			RequestID: c.GetString("RequestID"),
		}

		if os.Getenv("APP_ENV") == "development" {
			errorResponse.Details = err.Error()
			errorResponse.DevMessage = string(debug.Stack())
		}

		logging.Error("Unhandled request error", map[string]interface{}{
			"path":       errorResponse.Path,
			"request_id": errorResponse.RequestID,
			"error":      err.Error(),
		})

		c.JSON(status, gin.H{"error": errorResponse})
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("RequestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs all requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		details := map[string]interface{}{
			"request_id": c.GetString("RequestID"),
		}
		if userID, ok := c.Get("userID"); ok {
			details["user_id"] = userID
		}
		logging.LogHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), details)
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logging.Error("Panic while serving request", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"panic": fmt.Sprintf("%v", err),
					"stack": string(debug.Stack()),
				})

				errorResponse := ErrorResponse{
					Status:    http.StatusInternalServerError,
					Message:   "An unexpected error occurred",
					Path:      c.Request.URL.Path,
					Timestamp: time.Now(),
					RequestID: c.GetString("RequestID"),
				}

				if os.Getenv("APP_ENV") == "development" {
					errorResponse.Details = fmt.Sprintf("%v", err)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorResponse})
			}
		}()
		c.Next()
	}
}

// MetricsMiddleware collects HTTP request metrics. Routes are labelled by
// their pattern so ids do not blow up label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		metrics.RequestInProgress.WithLabelValues(method, path).Inc()
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestCounter.WithLabelValues(status, method, path).Inc()
		metrics.RequestDuration.WithLabelValues(status, method, path).Observe(time.Since(start).Seconds())
		metrics.RequestInProgress.WithLabelValues(method, path).Dec()
	}
}
