package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
	"github.com/nitu-designer/lehangas/internal/platform/httpx"
)

const (
	// HeaderName carries the client-chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks responses served from the store.
	ReplayHeader = "X-Idempotent-Replay"

	defaultMaxBody = 64 << 20
)

type options struct {
	ttl      time.Duration
	maxBody  int64
	required bool
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// Option customises Guard.
type Option func(*options)

// WithTTL sets how long completed responses are replayable.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxBody bounds the request body buffered for fingerprinting.
func WithMaxBody(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// WithRequiredKey rejects mutating requests that omit the header.
func WithRequiredKey() Option {
	return func(o *options) { o.required = true }
}

// WithLogger receives store failures.
func WithLogger(fn func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(o *options) { o.logger = fn }
}

// Guard replays the stored response when a POST, PUT, PATCH or DELETE repeats an
// Idempotency-Key already used by the same signed-in user. Requests without the
// header pass through unless WithRequiredKey is set.
func Guard(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := options{ttl: DefaultTTL, maxBody: defaultMaxBody}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := cfg.logger
	if log == nil {
		log = func(context.Context, string, map[string]any) {}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				if cfg.required {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+HeaderName+" header", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := bufferBody(r, cfg.maxBody)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large or unreadable", http.StatusRequestEntityTooLarge))
				return
			}
			requester := requesterOf(ctx)
			scoped := digest(requester, key)
			fingerprint := digest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), digest(string(body)))

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			case err != nil:
				log(ctx, "idempotency.reserve_failed", map[string]any{"error": err.Error()})
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch reservation.State {
			case StateCompleted:
				replay(w, reservation.Response)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this key", http.StatusConflict))
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			resp := Response{Status: rec.statusCode(), Headers: replayableHeaders(rec.header), Body: rec.body.Bytes()}
			// Server errors are not cached so the client can retry with the same key.
			if resp.Status >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					log(ctx, "idempotency.release_failed", map[string]any{"error": err.Error()})
				}
			} else if err := store.Complete(ctx, scoped, fingerprint, resp, cfg.ttl); err != nil {
				log(ctx, "idempotency.complete_failed", map[string]any{"error": err.Error()})
				if err := store.Release(ctx, scoped); err != nil {
					log(ctx, "idempotency.release_failed", map[string]any{"error": err.Error()})
				}
			}
			rec.flush(w)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func bufferBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("idempotency: body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterOf(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, resp Response) {
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(ReplayHeader, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.statusCode())
	_, _ = w.Write(r.body.Bytes())
}
