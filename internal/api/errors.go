package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/MJE43/rps-commit-reveal/internal/game"
)

// ErrorBuilder assembles an EngineError.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records err under the "cause" key. Only used for internal errors
// since causes may name storage paths.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// errorMapping ties an engine sentinel to its wire type and status.
type errorMapping struct {
	target  error
	errType string
	status  int
}

var errorMappings = []errorMapping{
	{game.ErrGameNotFound, ErrTypeGameNotFound, http.StatusNotFound},
	{game.ErrInvalidMove, ErrTypeInvalidMove, http.StatusBadRequest},
	{game.ErrInvalidAmount, ErrTypeInvalidAmount, http.StatusBadRequest},
	{game.ErrInvalidAccount, ErrTypeInvalidAccount, http.StatusBadRequest},
	{game.ErrDuplicateParticipant, ErrTypeDuplicateParticipant, http.StatusBadRequest},
	{game.ErrHashMismatch, ErrTypeHashMismatch, http.StatusBadRequest},
	{game.ErrInvalidPhase, ErrTypeInvalidPhase, http.StatusConflict},
	{game.ErrNotParticipant, ErrTypeNotParticipant, http.StatusConflict},
	{game.ErrAlreadyCommitted, ErrTypeAlreadyCommitted, http.StatusConflict},
	{game.ErrAlreadyRevealed, ErrTypeAlreadyRevealed, http.StatusConflict},
	{game.ErrAlreadySettled, ErrTypeAlreadySettled, http.StatusConflict},
	{game.ErrGameNotSettled, ErrTypeGameNotSettled, http.StatusConflict},
	{game.ErrRevealRequired, ErrTypeRevealRequired, http.StatusConflict},
	{game.ErrDeadlineNotReached, ErrTypeDeadlineNotReached, http.StatusTooEarly},
	{game.ErrInsufficientBalance, ErrTypeInsufficientBalance, http.StatusPaymentRequired},
	{game.ErrInsufficientAllowance, ErrTypeInsufficientAllowance, http.StatusPaymentRequired},
	{context.DeadlineExceeded, ErrTypeTimeout, http.StatusGatewayTimeout},
}

// classify maps err onto an error type and HTTP status.
func classify(err error) (string, int) {
	var ee EngineError
	if errors.As(err, &ee) {
		return ee.Type, http.StatusBadRequest
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.errType, m.status
		}
	}
	return ErrTypeInternal, http.StatusInternalServerError
}

// ErrorHandler turns engine and validation failures into EngineError bodies.
type ErrorHandler struct{}

func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{}
}

// HandleError classifies err and writes the matching structured response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	errType, status := classify(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	engineErr := NewError(errType, msg).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method)
	if status == http.StatusInternalServerError {
		engineErr.WithCause(err)
	}
	built := engineErr.Build()

	eh.logError(r, built, status)
	eh.writeErrorResponse(w, status, built)
}

func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// logError logs at warn for client mistakes and error for server faults.
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	fields := []interface{}{
		"type", engineErr.Type,
		"category", category,
		"status", status,
		"request_id", engineErr.RequestID,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", r.RemoteAddr,
	}
	if cause, ok := engineErr.Context["cause"]; ok {
		fields = append(fields, "cause", cause)
	}
	if status >= http.StatusInternalServerError {
		log.Errorw(engineErr.Message, fields...)
		return
	}
	log.Warnw(engineErr.Message, fields...)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		log.Errorw("encode error response", "err", err)
	}
}

// RecoveryHandler answers a panicking handler with a 500 EngineError.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				log.Errorw("panic recovered", "request_id", requestID, "path", r.URL.Path, "method", r.Method, "panic", rvr)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
