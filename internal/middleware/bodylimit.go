package middleware

import (
	"net/http"

	"github.com/parserhub/hub-server-go/internal/config"
)

// BodyLimitMiddleware caps request bodies. Every payload on this API is a
// small JSON object; anything near the cap is not a legitimate client.
type BodyLimitMiddleware struct {
	maxBytes int64
}

func NewBodyLimitMiddleware(maxBytes int64) *BodyLimitMiddleware {
	if maxBytes <= 0 {
		maxBytes = config.MaxRequestBodyBytes
	}
	return &BodyLimitMiddleware{maxBytes: maxBytes}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The declared length is rejected up front; MaxBytesReader still
		// guards chunked bodies that never declare one.
		if r.ContentLength > m.maxBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "request body too large",
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		next.ServeHTTP(w, r)
	})
}
