package middleware

import (
	"net/http"
	"os"
	"strings"
)

// corsOrigins - origin'ы, которым разрешены кросс-доменные запросы.
// Локальные адреса фронтенда прописаны всегда, остальные добавляются
// через CORS_ALLOWED_ORIGINS (список через запятую)
var corsOrigins = func() map[string]bool {
	origins := map[string]bool{
		"http://localhost:3000": true,
		"http://127.0.0.1:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:8080": true,
	}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return origins
}()

// CORS выставляет заголовки Cross-Origin Resource Sharing
//
// Известный origin получает конкретный Allow-Origin плюс credentials,
// запрос вовсе без Origin (curl, серверные клиенты) получает "*",
// неизвестный origin не получает ничего и блокируется браузером.
// Preflight (OPTIONS) завершается сразу: 200 OK с кешем на сутки
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch origin := r.Header.Get("Origin"); {
		case origin != "" && corsOrigins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		case origin == "":
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
