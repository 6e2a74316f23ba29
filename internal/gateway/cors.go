package gateway

import "net/http"

// CORSConfig is the allow-list the router applies to every response
// (spec §4.7). Grounded on the teacher's internal/web.CORSMiddleware,
// narrowed to a single configured origin rather than a list, since the
// spec names one `ALLOWED_ORIGIN` value.
type CORSConfig struct {
	AllowedOrigin  string
	AllowedMethods []string
	AllowedHeaders []string
}

func (c CORSConfig) apply(w http.ResponseWriter, r *http.Request) {
	origin := c.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", joinOrDefault(c.AllowedMethods, "GET,POST,OPTIONS"))
	w.Header().Set("Access-Control-Allow-Headers", joinOrDefault(c.AllowedHeaders, "Content-Type,X-Shopify-Hmac-Sha256"))
}

func joinOrDefault(values []string, def string) string {
	if len(values) == 0 {
		return def
	}
	out := values[0]
	for _, v := range values[1:] {
		out += "," + v
	}
	return out
}
