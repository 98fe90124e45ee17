package http

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// statusResponseWriter обёртка для http.ResponseWriter, чтобы захватывать статус-код
// и передавать его дальше
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader сохраняет статус и вызывает оригинальный WriteHeader
func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware выводит в стандартный лог информацию о каждом HTTP-запросе и панике
func LoggingMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			// обработка паники
			defer func() {
				if rec := recover(); rec != nil {
					dur := time.Since(start).Milliseconds()
					log.Printf("PANIC %s %s 500 %dms: %v", r.Method, r.URL.Path, dur, rec)
					panic(rec)
				}
			}()
			next.ServeHTTP(srw, r)
			dur := time.Since(start).Milliseconds()
			log.Printf("%s %s %d %dms", r.Method, r.URL.Path, srw.status, dur)
		})
	}
}

// userIDKey — ключ контекста для идентификатора владельца записей
type userIDKey struct{}

// UserIDFromContext извлекает идентификатор пользователя, установленный auth-middleware
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// ContextWithUserID кладет идентификатор пользователя в контекст (используется в тестах)
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// AuthMiddleware проверяет bearer-токен и кладет subject в контекст запроса
// Выпуск токенов остается за внешним провайдером идентичности:
// middleware только верифицирует подпись HMAC и извлекает владельца
func AuthMiddleware(secret []byte) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, ErrorResponse{4, "authorization token required", map[string]interface{}{}})
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")
			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, ErrorResponse{4, "invalid or expired token", map[string]interface{}{}})
				return
			}
			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				writeError(w, http.StatusUnauthorized, ErrorResponse{4, "invalid or expired token", map[string]interface{}{}})
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), sub)))
		})
	}
}
