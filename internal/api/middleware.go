package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru"
)

// IdempotencyHeader lets a client retry a POST without applying it twice.
const IdempotencyHeader = "Idempotency-Key"

// LoggingMiddleware logs request start and completion. Bodies are never
// logged since reveal requests carry nonces.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		log.Debugw("request start",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(ww, r)

		log.Infow("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", requestID,
			"bytes_written", ww.BytesWritten(),
		)
	})
}

// CORSMiddleware allows the configured origins. "*" allows any.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(s.opts.CORSOrigins))
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+IdempotencyHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

// idempotency replays the stored response of a successful POST carrying an
// already seen Idempotency-Key. Failed requests are not stored so they can
// be retried.
type idempotency struct {
	cache *lru.Cache
}

func newIdempotency(size int) (*idempotency, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &idempotency{cache: c}, nil
}

func (i *idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if i == nil || key == "" || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		cacheKey := r.URL.Path + "|" + key
		if v, ok := i.cache.Get(cacheKey); ok {
			resp := v.(*cachedResponse)
			w.Header().Set("Content-Type", resp.contentType)
			w.Header().Set("X-Engine-Version", EngineVersion)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(resp.status)
			_, _ = w.Write(resp.body)
			return
		}

		var buf bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&buf)
		next.ServeHTTP(ww, r)

		if status := ww.Status(); status >= 200 && status < 300 {
			i.cache.Add(cacheKey, &cachedResponse{
				status:      status,
				contentType: ww.Header().Get("Content-Type"),
				body:        buf.Bytes(),
			})
		}
	})
}
