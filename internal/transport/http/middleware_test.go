package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// signToken выпускает HS256-токен с заданным subject для тестов auth-middleware
func signToken(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	if sub != "" {
		claims["sub"] = sub
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return raw
}

// authRouter собирает роутер с одним защищенным эндпоинтом, отдающим владельца из контекста
func authRouter(secret []byte) *mux.Router {
	r := mux.NewRouter()
	r.Use(AuthMiddleware(secret))
	r.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(userID))
	}).Methods("GET")
	return r
}

// TestAuthMiddleware_ValidToken проверяет, что subject валидного токена попадает в контекст запроса
func TestAuthMiddleware_ValidToken(t *testing.T) {
	secret := []byte("test-secret")
	r := authRouter(secret)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "user-1"))
	rq := httptest.NewRecorder()
	r.ServeHTTP(rq, req)
	if rq.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rq.Code, rq.Body.String())
	}
	if rq.Body.String() != "user-1" {
		t.Fatalf("expected subject in context, got %q", rq.Body.String())
	}
}

// TestAuthMiddleware_Rejections перебирает сценарии отказа в авторизации:
// отсутствие заголовка, неверная схема, чужая подпись, просроченный токен, пустой subject
func TestAuthMiddleware_Rejections(t *testing.T) {
	secret := []byte("test-secret")
	r := authRouter(secret)

	// просроченный токен
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredRaw, err := expired.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"foreign signature", "Bearer " + signToken(t, []byte("other-secret"), "user-1")},
		{"expired token", "Bearer " + expiredRaw},
		{"missing subject", "Bearer " + signToken(t, secret, "")},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rq := httptest.NewRecorder()
		r.ServeHTTP(rq, req)
		if rq.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rq.Code)
		}
	}
}

// TestUserIDFromContext проверяет извлечение владельца из контекста
func TestUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := UserIDFromContext(req.Context()); ok {
		t.Error("expected no user in fresh context")
	}
	ctx := ContextWithUserID(req.Context(), "user-9")
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-9" {
		t.Errorf("unexpected user from context: %q %v", id, ok)
	}
}

// TestLoggingMiddleware проверяет, что обертка пропускает запрос и сохраняет статус ответа
func TestLoggingMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware())
	r.HandleFunc("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods("GET")

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rq := httptest.NewRecorder()
	r.ServeHTTP(rq, req)
	if rq.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rq.Code)
	}
}
