package i18n

import "net/http"

// Middleware injects a localizer into every request context. The
// Accept-Language header is honoured, falling back to the default language.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var loc = NewLocalizer()
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				loc = NewLocalizer(accept)
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
