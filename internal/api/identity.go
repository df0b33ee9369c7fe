package api

import (
	"context"
	"net/http"
	"strconv"
)

// Caller identity comes from the X-User-ID header. The gateway in front of
// this service authenticates the user and injects the header; this service
// only needs to know who is calling.

type contextKey string

const userIDKey contextKey = "user_id"

// requireUser rejects requests without a valid X-User-ID header and stores
// the id in the request context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "invalid X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated caller's id. It must only be called on
// routes behind requireUser.
func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}
