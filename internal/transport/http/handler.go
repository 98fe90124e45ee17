package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"EcoTrackBackend/internal/model"
	"EcoTrackBackend/internal/repository"
	"EcoTrackBackend/internal/service"
)

// CatalogService задаёт интерфейс поискового движка каталога для HTTP-слоя
type CatalogService interface {
	Search(ctx context.Context, p repository.SearchParams) (*service.SearchResult, error)
	FindByBarcode(ctx context.Context, barcode string) (*model.Product, error)
	WithFootprint(ctx context.Context, page, limit int) (*service.SearchResult, error)
	Stats(ctx context.Context) (*model.CatalogStats, error)
	Alternatives(ctx context.Context, productID string, limit int) ([]model.Product, error)
}

// FootprintService задаёт интерфейс движка журнала следа для HTTP-слоя
type FootprintService interface {
	Track(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error)
	History(ctx context.Context, userID, period string, start, end *time.Time, page, limit int) (*service.HistoryResult, error)
	CategoryBreakdown(ctx context.Context, userID, period string, start, end *time.Time) (*service.BreakdownResult, error)
	Goals(ctx context.Context, userID string) ([]model.Goal, error)
	SaveGoal(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error)
}

// barcodePattern задаёт формат штрихкода: от 8 до 14 цифр
var barcodePattern = regexp.MustCompile(`^[0-9]{8,14}$`)

// Handler содержит зависимости и реализует HTTP-эндпоинты каталога и журнала следа
type Handler struct {
	catalog    CatalogService
	footprints FootprintService
}

// NewHandler создаёт новый HTTP Handler
func NewHandler(catalog CatalogService, footprints FootprintService) *Handler {
	return &Handler{catalog: catalog, footprints: footprints}
}

// RegisterRoutes регистрирует маршруты API
// requireAuth оборачивает эндпоинты журнала следа: им нужен владелец записи
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth func(http.Handler) http.Handler) {
	// Эндпоинты для проверки здоровья и готовности сервиса
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/readyz", h.Readyz).Methods("GET")
	r.HandleFunc("/products/search", h.SearchProducts).Methods("GET")
	r.HandleFunc("/products/stats", h.ProductStats).Methods("GET")
	r.HandleFunc("/products/footprint", h.ProductsWithFootprint).Methods("GET")
	r.HandleFunc("/products/barcode/{barcode}", h.ProductByBarcode).Methods("GET")
	r.HandleFunc("/products/{id}/alternatives", h.ProductAlternatives).Methods("GET")

	fp := r.PathPrefix("/footprints").Subrouter()
	fp.Use(requireAuth)
	fp.HandleFunc("/track", h.TrackFootprint).Methods("POST")
	fp.HandleFunc("/history", h.FootprintHistory).Methods("GET")
	fp.HandleFunc("/category-breakdown", h.CategoryBreakdown).Methods("GET")
	fp.HandleFunc("/goals", h.Goals).Methods("GET")
	fp.HandleFunc("/goals", h.SaveGoal).Methods("POST")
}

// ErrorResponse модель ошибки API
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError транслирует ошибку движка в HTTP-статус:
// ErrInvalidInput -> 400, ErrNotFound -> 404, ErrUnavailable -> 503, иначе 500
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrorResponse{1, err.Error(), map[string]interface{}{}})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{3, "errors.common.notFound", map[string]interface{}{}})
	case errors.Is(err, repository.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{2, "service unavailable", map[string]interface{}{}})
	default:
		writeError(w, http.StatusInternalServerError, ErrorResponse{1, err.Error(), map[string]interface{}{}})
	}
}

// SearchProducts обрабатывает GET /products/search
// 1. Читает q, повторяемые category и ecoscore, page, limit, sortBy из query
// 2. Валидирует числовые границы и перечисления, отклоняя некорректный ввод до движка
// 3. Вызывает сервис Search
// 4. Возвращает JSON со страницей товаров и метаданными пагинации
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := parsePositiveInt(q.Get("page"), 1, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid page", map[string]interface{}{}})
		return
	}
	limit, ok := parsePositiveInt(q.Get("limit"), 20, 50)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid limit", map[string]interface{}{}})
		return
	}
	sortBy := q.Get("sortBy")
	switch sortBy {
	case "", repository.SortRelevance, repository.SortCarbonAsc, repository.SortCarbonDesc:
	default:
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid sortBy", map[string]interface{}{}})
		return
	}
	for _, g := range q["ecoscore"] {
		if g != "A" && g != "B" && g != "C" && g != "D" && g != "E" {
			writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid ecoscore", map[string]interface{}{}})
			return
		}
	}
	params := repository.SearchParams{
		Query:      q.Get("q"),
		Categories: q["category"],
		EcoScores:  q["ecoscore"],
		Page:       page,
		Limit:      limit,
		SortBy:     sortBy,
	}
	res, err := h.catalog.Search(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

// ProductByBarcode обрабатывает GET /products/barcode/{barcode}
// 1. Валидирует формат штрихкода (8-14 цифр)
// 2. Вызывает сервис FindByBarcode, обрабатывает ErrNotFound и другие ошибки
// 3. При успехе возвращает JSON товара
func (h *Handler) ProductByBarcode(w http.ResponseWriter, r *http.Request) {
	barcode := mux.Vars(r)["barcode"]
	if !barcodePattern.MatchString(barcode) {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "barcode must be 8-14 digits", map[string]interface{}{}})
		return
	}
	product, err := h.catalog.FindByBarcode(r.Context(), barcode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, product)
}

// ProductsWithFootprint обрабатывает GET /products/footprint
// Возвращает страницу товаров с известным следом, отсортированных по следу
func (h *Handler) ProductsWithFootprint(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePositiveInt(r.URL.Query().Get("page"), 1, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid page", map[string]interface{}{}})
		return
	}
	limit, ok := parsePositiveInt(r.URL.Query().Get("limit"), 20, 50)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid limit", map[string]interface{}{}})
		return
	}
	res, err := h.catalog.WithFootprint(r.Context(), page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

// ProductStats обрабатывает GET /products/stats
// Пустой каталог дает нулевую статистику, а не ошибку
func (h *Handler) ProductStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, stats)
}

// ProductAlternatives обрабатывает GET /products/{id}/alternatives
// Возвращает до limit более экологичных товаров; несуществующий id дает пустой список
func (h *Handler) ProductAlternatives(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, ok := parsePositiveInt(r.URL.Query().Get("limit"), 5, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid limit", map[string]interface{}{}})
		return
	}
	products, err := h.catalog.Alternatives(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"alternatives": products})
}

// TrackFootprint обрабатывает POST /footprints/track
// 1. Берет владельца из контекста запроса (установлен auth-middleware)
// 2. Декодирует тело запроса в запись журнала
// 3. Вызывает сервис Track; ошибки валидации дают 400
// 4. Возвращает JSON созданной записи
func (h *Handler) TrackFootprint(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{4, "authorization required", map[string]interface{}{}})
		return
	}
	var req struct {
		ProductBarcode *string    `json:"product_barcode"`
		ManualItem     *string    `json:"manual_item"`
		Amount         float64    `json:"amount"`
		CarbonTotal    float64    `json:"carbon_total"`
		Category       string     `json:"category"`
		LoggedAt       *time.Time `json:"logged_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid request body", map[string]interface{}{}})
		return
	}
	if req.ProductBarcode != nil && !barcodePattern.MatchString(*req.ProductBarcode) {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "product_barcode must be 8-14 digits", map[string]interface{}{}})
		return
	}
	entry := &model.FootprintEntry{
		UserID:         userID,
		ProductBarcode: req.ProductBarcode,
		ManualItem:     req.ManualItem,
		Amount:         req.Amount,
		CarbonTotal:    req.CarbonTotal,
		Category:       req.Category,
	}
	if req.LoggedAt != nil {
		entry.LoggedAt = *req.LoggedAt
	}
	created, err := h.footprints.Track(r.Context(), entry)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, created)
}

// FootprintHistory обрабатывает GET /footprints/history
// 1. Читает period (по умолчанию weekly), границы окна, page и limit
// 2. Вызывает сервис History
// 3. Возвращает JSON с корзинами, сырыми строками и разрешенным окном
func (h *Handler) FootprintHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{4, "authorization required", map[string]interface{}{}})
		return
	}
	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = "weekly"
	}
	start, ok := parseDate(q.Get("start_date"))
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid start_date", map[string]interface{}{}})
		return
	}
	end, ok := parseDate(q.Get("end_date"))
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid end_date", map[string]interface{}{}})
		return
	}
	page, ok := parsePositiveInt(q.Get("page"), 1, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid page", map[string]interface{}{}})
		return
	}
	limit, ok := parsePositiveInt(q.Get("limit"), 50, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid limit", map[string]interface{}{}})
		return
	}
	res, err := h.footprints.History(r.Context(), userID, period, start, end, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

// CategoryBreakdown обрабатывает GET /footprints/category-breakdown
// Период по умолчанию — monthly; окно по умолчанию короче окна истории
func (h *Handler) CategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{4, "authorization required", map[string]interface{}{}})
		return
	}
	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = "monthly"
	}
	start, ok := parseDate(q.Get("start_date"))
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid start_date", map[string]interface{}{}})
		return
	}
	end, ok := parseDate(q.Get("end_date"))
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid end_date", map[string]interface{}{}})
		return
	}
	res, err := h.footprints.CategoryBreakdown(r.Context(), userID, period, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

// Goals обрабатывает GET /footprints/goals
func (h *Handler) Goals(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{4, "authorization required", map[string]interface{}{}})
		return
	}
	goals, err := h.footprints.Goals(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"goals": goals})
}

// SaveGoal обрабатывает POST /footprints/goals
// 1. Декодирует тело запроса в поля target_value, timeframe и description
// 2. Вызывает сервис SaveGoal (upsert по паре пользователь/период)
// 3. Возвращает JSON созданной или обновленной цели
func (h *Handler) SaveGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{4, "authorization required", map[string]interface{}{}})
		return
	}
	var req struct {
		TargetValue float64 `json:"target_value"`
		Timeframe   string  `json:"timeframe"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid request body", map[string]interface{}{}})
		return
	}
	goal, err := h.footprints.SaveGoal(r.Context(), userID, req.Timeframe, req.TargetValue, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, goal)
}

// Healthz возвращает статус работы сервиса
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz возвращает готовность сервиса
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// parsePositiveInt разбирает положительное число из query с дефолтом и верхней границей
// Возвращает (значение, ok); пустая строка дает дефолт
func parsePositiveInt(v string, def, max int) (int, bool) {
	if v == "" {
		return def, true
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 1 || i > max {
		return 0, false
	}
	return i, true
}

// parseDate разбирает дату RFC3339 из query
// Возвращает (nil, true) для пустой строки — граница окна не задана
func parseDate(v string) (*time.Time, bool) {
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}
