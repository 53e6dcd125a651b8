package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/auth"
)

// apiKey reads the key from the api_key header or a bearer token.
func apiKey(r *http.Request) string {
	if k := r.Header.Get("api_key"); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// require authenticates the request and checks that its key holds scope.
// A failing key lookup is a server error, not a rejected key.
func (h *Handler) require(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.auth.Authenticate(ctx, apiKey(r))
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(ctx).Error("Authenticate request", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !info.HasScope(scope) {
			zctx.From(ctx).Warn("API key lacks scope",
				zap.String("key", info.Name),
				zap.String("scope", scope),
			)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
