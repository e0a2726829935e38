package middleware

import (
	"net/http"

	"storefront-api/utils"
)

// LimitBody caps request bodies at maxBytes. Reads past the cap fail with
// *http.MaxBytesError, which utils.DecodeJSON answers with 413.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
