package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var corsHandler = cors.Handler(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
	AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
	ExposedHeaders: []string{"X-Request-Id"},
	MaxAge:         300,
})

// CORS 允许浏览器前端跨域访问 API。
func CORS(next http.Handler) http.Handler {
	return corsHandler(next)
}
