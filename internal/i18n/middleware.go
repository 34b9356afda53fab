package i18n

import "net/http"

// Middleware picks a language per request from the lang query parameter or
// the Accept-Language header and stores a matching localizer in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", tag.String())
		ctx := WithLocalizer(r.Context(), NewLocalizer(tag.String()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
