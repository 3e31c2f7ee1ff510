package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/rps-commit-reveal/internal/game"
)

const (
	maxBodyBytes = 64 << 10
	maxListLimit = 500
)

// fieldError is a request validation failure on one field.
type fieldError struct {
	field   string
	message string
}

func (e fieldError) Error() string { return fmt.Sprintf("%s: %s", e.field, e.message) }

func invalid(field, format string, args ...interface{}) error {
	return fieldError{field: field, message: fmt.Sprintf(format, args...)}
}

// decode reads a JSON body into v, rejecting unknown fields and trailing data.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("body", "invalid JSON: %v", err)
	}
	if dec.More() {
		return invalid("body", "unexpected data after JSON object")
	}
	return nil
}

func gameIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, invalid("id", "game id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func requireAccount(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func parseFilter(r *http.Request) (game.Filter, error) {
	q := r.URL.Query()
	f := game.Filter{Player: q.Get("player")}
	if p := q.Get("phase"); p != "" {
		phase, err := game.ParsePhase(p)
		if err != nil {
			return f, invalid("phase", "unknown phase %q", p)
		}
		f.Phase = phase
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 || n > maxListLimit {
			return f, invalid("limit", "must be between 0 and %d", maxListLimit)
		}
		f.Limit = n
	}
	return f, nil
}

// fail routes validation errors to a 400 and everything else through the
// sentinel mapping.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if fe, ok := err.(fieldError); ok {
		s.errorHandler.HandleValidationError(w, r, fe.field, fe.message)
		return
	}
	s.errorHandler.HandleError(w, r, err)
}
