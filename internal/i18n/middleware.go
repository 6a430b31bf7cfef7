package i18n

import "net/http"

// Middleware injects a per-request localizer into the context. The language
// comes from the lang query parameter when present, otherwise from the
// Accept-Language header, falling back to the configured default.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prefs := r.URL.Query().Get("lang")
			if prefs == "" {
				prefs = r.Header.Get("Accept-Language")
			}
			loc := NewLocalizer(Match(prefs))
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
