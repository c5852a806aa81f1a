package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/auralabs/aura/internal/observability"
)

// CorrelationIDHeader carries the request correlation id. Clients may
// supply their own to tie a submission to its job log.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID injects a correlation id into the request context, minting
// a UUID when the client did not send one. The id is echoed in the
// response and stamped onto every job the request creates.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(CorrelationIDHeader, id)

		ctx := observability.ContextWithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
