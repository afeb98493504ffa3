package identity

import (
	"log/slog"
	"net/http"

	id "arcana/pkg/domain"
	dErrors "arcana/pkg/domain-errors"
	"arcana/pkg/platform/httputil"
	"arcana/pkg/requestcontext"
)

// Resolver is middleware that guarantees exactly one identity per request.
//
// Precedence: an authenticated user placed in context by the auth middleware
// wins over any device cookie. Otherwise the signed device cookie is
// verified; a missing or tampered cookie results in a freshly minted token
// and a new signed cookie on the response.
func Resolver(svc *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if requestcontext.Identity(ctx).IsUser() {
				next.ServeHTTP(w, r)
				return
			}

			if cookie, err := r.Cookie(CookieName); err == nil {
				if token, ok := svc.DecodeCookie(cookie.Value); ok {
					ctx = requestcontext.WithIdentity(ctx, id.DeviceIdentity(token))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.WarnContext(ctx, "device cookie failed signature verification",
					"request_id", requestcontext.RequestID(ctx),
				)
			}

			token, err := svc.Mint()
			if err != nil {
				logger.ErrorContext(ctx, "failed to mint device token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeIdentityUnresolved, "could not establish an identity for this request"))
				return
			}
			svc.SetCookie(w, token)

			logger.InfoContext(ctx, "minted device identity",
				"device", DeviceLabel(requestcontext.UserAgent(ctx)),
				"request_id", requestcontext.RequestID(ctx),
			)

			ctx = requestcontext.WithIdentity(ctx, id.DeviceIdentity(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
