package middleware

import (
	"net/http"
	"runtime/debug"

	"riskguard/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Назначение:
// Перехватывает panic в HTTP handlers и предотвращает падение всего сервера.
// Логирует сообщение и stack trace, возвращает клиенту 500 Internal Server Error.
//
// Функции:
// - Перехват panic в любом handler
// - Логирование ошибки и полного stack trace
// - Возврат 500 Internal Server Error клиенту без деталей паники
// - Продолжение обработки последующих запросов
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("panic in http handler",
					utils.Component("api"),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.Any("panic", err),
					utils.String("stack", string(debug.Stack())))

				// Детали паники в ответ не попадают
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
