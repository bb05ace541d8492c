package api

import (
	"net/http"

	"liveclass/internal/auth"
	"liveclass/pkg/types"
)

// authenticate rejects requests without a valid bearer token and stores the
// caller in the request context
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.verifier.FromRequest(r)
		if err != nil {
			s.sendError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

func requireRole(role types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := auth.CallerFrom(r.Context())
			if !ok || caller.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Forbidden","code":403,"message":"requires ` + string(role) + ` role"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
