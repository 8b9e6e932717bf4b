package api

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id of a request through logs and responses
const RequestIDHeader = "X-Request-ID"

// requestID echoes the caller's request id or assigns a new one
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
