package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

// CORS возвращает middleware с заголовками Cross-Origin Resource Sharing
//
// Список разрешённых origins приходит из конфигурации
// (CORS_ALLOWED_ORIGINS). Разрешённый origin получает конкретный
// Access-Control-Allow-Origin и credentials; запрос без Origin
// (curl, серверные клиенты) получает "*"; неразрешённый origin не
// получает заголовков вовсе, и браузер блокирует ответ сам.
//
// Preflight (OPTIONS) завершается сразу со статусом 200,
// Access-Control-Max-Age кэширует его на 24 часа.
func CORS(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin != "" {
			allowed[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			} else if origin == "" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
