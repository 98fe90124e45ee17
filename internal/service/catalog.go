package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"EcoTrackBackend/internal/model"
	"EcoTrackBackend/internal/repository"
)

// CatalogRepo определяет интерфейс репозитория каталога товаров (поиск и агрегаты)
// Реализация может быть на основе документного хранилища MongoDB
// Search и WithFootprint возвращают страницу товаров и точный total полного набора
type CatalogRepo interface {
	Search(ctx context.Context, p repository.SearchParams) ([]model.Product, int, error)
	FindByBarcode(ctx context.Context, barcode string) (*model.Product, error)
	WithFootprint(ctx context.Context, page, limit int) ([]model.Product, int, error)
	Stats(ctx context.Context) (*model.CatalogStats, error)
	Alternatives(ctx context.Context, productID string, limit int) ([]model.Product, error)
}

// Cache определяет интерфейс кэширования результатов операций (Redis)
// Методы позволяют записывать, читать и инвалидировать кэш по ключу
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Invalidate(ctx context.Context, key string) error
}

// cacheTTL задаёт время жизни записей в кэше (Redis), по умолчанию 1 минута или из REDIS_TTL
var cacheTTL = time.Minute

func init() {
	if v := os.Getenv("REDIS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cacheTTL = d
		}
	}
}

// SearchResult объединяет страницу товаров и метаданные пагинации
type SearchResult struct {
	Products   []model.Product  `json:"products"`
	Pagination model.Pagination `json:"pagination"`
}

// CatalogService реализует поисковый движок каталога:
// - нормализация параметров поиска (страница, лимит, сортировка)
// - вызовы репозитория каталога
// - кэширование страниц результатов и карточек товаров
// Сервис не хранит состояния: каждый запрос — независимая последовательность чтений
type CatalogService struct {
	repo  CatalogRepo
	cache Cache
}

// NewCatalogService создаёт новый сервис каталога
func NewCatalogService(r CatalogRepo, c Cache) *CatalogService {
	return &CatalogService{repo: r, cache: c}
}

// normalizeSearchParams приводит параметры к рабочим значениям:
// страница не меньше 1, лимит в пределах 1..50 (по умолчанию 20),
// режим сортировки по умолчанию — релевантность
func normalizeSearchParams(p repository.SearchParams) repository.SearchParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 50 {
		p.Limit = 50
	}
	switch p.SortBy {
	case repository.SortCarbonAsc, repository.SortCarbonDesc:
	default:
		p.SortBy = repository.SortRelevance
	}
	return p
}

// buildPagination собирает метаданные страницы по точному total
// hasMore истинно, когда за текущей страницей остаются записи
func buildPagination(page, limit, total, returned int) model.Pagination {
	skip := (page - 1) * limit
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return model.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		HasMore:    skip+returned < total,
		TotalPages: totalPages,
	}
}

// searchCacheKey собирает ключ кэша из полного кортежа параметров поиска
func searchCacheKey(p repository.SearchParams) string {
	return fmt.Sprintf("products:search:%s:%s:%s:%d:%d:%s",
		strings.TrimSpace(p.Query),
		strings.Join(p.Categories, ","),
		strings.Join(p.EcoScores, ","),
		p.Page, p.Limit, p.SortBy)
}

// Search выполняет поиск по каталогу и возвращает страницу с метаданными:
// 1. Нормализует параметры поиска
// 2. Пытается получить страницу из кэша Redis
// 3. При промахе кэша запрашивает репозиторий (страница и total считаются параллельно)
// 4. Кэширует ответ
func (s *CatalogService) Search(ctx context.Context, p repository.SearchParams) (*SearchResult, error) {
	p = normalizeSearchParams(p)
	key := searchCacheKey(p)
	// пытаемся получить из кэша
	if bytes, err := s.cache.Get(ctx, key); err == nil {
		var res SearchResult
		_ = json.Unmarshal(bytes, &res)
		return &res, nil
	}
	// из хранилища
	products, total, err := s.repo.Search(ctx, p)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}
	res := &SearchResult{
		Products:   products,
		Pagination: buildPagination(p.Page, p.Limit, total, len(products)),
	}
	// кэшируем ответ
	data, _ := json.Marshal(res)
	_ = s.cache.Set(ctx, key, data, cacheTTL)
	return res, nil
}

// FindByBarcode возвращает товар по штрихкоду:
// 1. Пытается получить из кэша Redis
// 2. При промахе кэша запрашивает из репозитория
// 3. Сохраняет найденный товар в кэш; отсутствие товара не кэшируется
func (s *CatalogService) FindByBarcode(ctx context.Context, barcode string) (*model.Product, error) {
	key := fmt.Sprintf("product:barcode:%s", barcode)
	// пытаемся получить из кэша
	bytes, err := s.cache.Get(ctx, key)
	if err == nil {
		var p model.Product
		_ = json.Unmarshal(bytes, &p)
		return &p, nil
	}
	// при промахе кэша получаем из хранилища
	product, err := s.repo.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	// кэшируем результат
	data, _ := json.Marshal(product)
	_ = s.cache.Set(ctx, key, data, cacheTTL)
	return product, nil
}

// WithFootprint возвращает страницу товаров с известным углеродным следом:
// 1. Нормализует страницу и лимит
// 2. Пытается получить из кэша по ключу с page/limit
// 3. При промахе кэша запрашивает репозиторий и кэширует ответ
func (s *CatalogService) WithFootprint(ctx context.Context, page, limit int) (*SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	key := fmt.Sprintf("products:footprint:%d:%d", page, limit)
	if bytes, err := s.cache.Get(ctx, key); err == nil {
		var res SearchResult
		_ = json.Unmarshal(bytes, &res)
		return &res, nil
	}
	products, total, err := s.repo.WithFootprint(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}
	res := &SearchResult{
		Products:   products,
		Pagination: buildPagination(page, limit, total, len(products)),
	}
	data, _ := json.Marshal(res)
	_ = s.cache.Set(ctx, key, data, cacheTTL)
	return res, nil
}

// Stats возвращает статистику каталога:
// 1. Пытается получить из кэша
// 2. При промахе кэша выполняет $facet-агрегат в репозитории
// 3. Кэширует ответ
// Пустой каталог дает нулевую статистику, а не ошибку
func (s *CatalogService) Stats(ctx context.Context) (*model.CatalogStats, error) {
	key := "products:stats"
	if bytes, err := s.cache.Get(ctx, key); err == nil {
		var stats model.CatalogStats
		_ = json.Unmarshal(bytes, &stats)
		return &stats, nil
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := json.Marshal(stats)
	_ = s.cache.Set(ctx, key, data, cacheTTL)
	return stats, nil
}

// Alternatives возвращает до limit более экологичных товаров той же категории
// Несуществующий товар-образец дает пустой список без ошибки
func (s *CatalogService) Alternatives(ctx context.Context, productID string, limit int) ([]model.Product, error) {
	if limit < 1 || limit > 10 {
		limit = 5
	}
	return s.repo.Alternatives(ctx, productID, limit)
}
