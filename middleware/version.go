package middleware

import (
	"context"
	"net/http"
	"strings"
)

const VersionContextKey contextKey = "api_version"

const (
	VersionV1 = "1.0"
	VersionV2 = "2.0"
)

// Version negotiates the API version from the Accept header
// ("application/json; version=2.0") with a ?version= query fallback. Unknown
// or missing versions resolve to 1.0.
func Version(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := versionFromAccept(r.Header.Get("Accept"))
		if version == "" {
			version = r.URL.Query().Get("version")
		}
		if version != VersionV2 {
			version = VersionV1
		}
		ctx := context.WithValue(r.Context(), VersionContextKey, version)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func versionFromAccept(accept string) string {
	for _, part := range strings.Split(accept, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "version=") {
			return strings.TrimPrefix(part, "version=")
		}
	}
	return ""
}

func GetVersionFromContext(ctx context.Context) string {
	v, ok := ctx.Value(VersionContextKey).(string)
	if !ok {
		return VersionV1
	}
	return v
}
