package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"EcoTrackBackend/internal/model"
)

// FootprintRepo определяет интерфейс репозитория журнала следа (строки и цели)
// Реализация может быть на основе Postgres
type FootprintRepo interface {
	CreateEntry(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error)
	ListEntries(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error)
	ListEntriesRange(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error)
	ListGoals(ctx context.Context, userID string) ([]model.Goal, error)
	UpsertGoal(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error)
}

// Logger определяет интерфейс логгирования событий (NATS)
// Метод PublishLog отправляет лог-сообщение в брокер сообщений
type Logger interface {
	PublishLog(data []byte) error
}

// ErrInvalidInput возвращается при некорректных входных данных записи или цели
var ErrInvalidInput = errors.New("invalid input")

const (
	maxAmount      = 10000.0
	maxCarbonTotal = 100000.0
)

// HistoryResult содержит агрегированную историю следа и сырые строки окна
type HistoryResult struct {
	Period     string                 `json:"period"`
	StartDate  time.Time              `json:"start_date"`
	EndDate    time.Time              `json:"end_date"`
	Aggregated []model.PeriodBucket   `json:"aggregated"`
	RawData    []model.FootprintEntry `json:"raw_data"`
}

// BreakdownResult содержит разбивку следа по категориям за окно
type BreakdownResult struct {
	Period      string                `json:"period"`
	StartDate   time.Time             `json:"start_date"`
	EndDate     time.Time             `json:"end_date"`
	Categories  []model.CategorySlice `json:"categories"`
	TotalCarbon float64               `json:"total_carbon"`
}

// FootprintService реализует движок агрегации журнала следа:
// - валидация записей перед вставкой
// - вызовы репозитория журнала
// - группировка строк в недельные/месячные корзины
// - публикация событий трекинга в лог
// Сервис не хранит состояния между запросами
type FootprintService struct {
	repo   FootprintRepo
	logger Logger
}

// NewFootprintService создаёт новый сервис журнала следа
func NewFootprintService(r FootprintRepo, l Logger) *FootprintService {
	return &FootprintService{repo: r, logger: l}
}

// Track создает новую запись журнала следа и возвращает ее:
// 1. Валидирует запись: владелец, ровно один источник (штрихкод или ручное описание),
//    границы amount и carbon_total, допустимая категория
// 2. Подставляет текущее время при незаполненном logged_at
// 3. Вызывает метод репозитория CreateEntry
// 4. Публикует сериализованную в JSON запись в лог
func (s *FootprintService) Track(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	created, err := s.repo.CreateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	// публикуем лог события в NATS
	data, _ := json.Marshal(created)
	_ = s.logger.PublishLog(data)
	return created, nil
}

// validateEntry проверяет инварианты записи журнала следа
func validateEntry(e *model.FootprintEntry) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	hasBarcode := e.ProductBarcode != nil && *e.ProductBarcode != ""
	hasManual := e.ManualItem != nil && *e.ManualItem != ""
	// ровно один источник: товар каталога или ручное описание
	if hasBarcode == hasManual {
		return fmt.Errorf("%w: exactly one of product_barcode and manual_item must be set", ErrInvalidInput)
	}
	if e.Amount <= 0 || e.Amount > maxAmount {
		return fmt.Errorf("%w: amount must be in (0, %v]", ErrInvalidInput, maxAmount)
	}
	if e.CarbonTotal <= 0 || e.CarbonTotal > maxCarbonTotal {
		return fmt.Errorf("%w: carbon_total must be in (0, %v]", ErrInvalidInput, maxCarbonTotal)
	}
	if !model.IsValidCategory(e.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, e.Category)
	}
	return nil
}

// historyWindow вычисляет окно дат истории при незаданных границах:
// конец — сейчас; начало — 30 дней назад для недель, 12 месяцев для месяцев
func historyWindow(period string, start, end *time.Time) (time.Time, time.Time) {
	e := time.Now().UTC()
	if end != nil {
		e = *end
	}
	if start != nil {
		return *start, e
	}
	if period == "weekly" {
		return e.AddDate(0, 0, -30), e
	}
	return e.AddDate(0, -12, 0), e
}

// breakdownWindow вычисляет окно дат разбивки по категориям:
// конец — сейчас; начало — 7 дней назад для недель, 1 месяц для месяцев
// Окно намеренно короче окна истории — это зафиксированный внешний контракт
func breakdownWindow(period string, start, end *time.Time) (time.Time, time.Time) {
	e := time.Now().UTC()
	if end != nil {
		e = *end
	}
	if start != nil {
		return *start, e
	}
	if period == "weekly" {
		return e.AddDate(0, 0, -7), e
	}
	return e.AddDate(0, -1, 0), e
}

// History возвращает историю следа пользователя за окно дат:
// 1. Валидирует период и вычисляет окно по умолчанию
// 2. Читает сырые строки окна с пагинацией по сырым строкам (не по корзинам)
// 3. Группирует строки в недельные или месячные корзины
// Ответ содержит и корзины, и сырые строки страницы, и разрешенное окно
func (s *FootprintService) History(ctx context.Context, userID, period string, start, end *time.Time, page, limit int) (*HistoryResult, error) {
	if !model.IsValidTimeframe(period) {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	from, to := historyWindow(period, start, end)
	offset := (page - 1) * limit
	entries, err := s.repo.ListEntries(ctx, userID, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.FootprintEntry{}
	}
	return &HistoryResult{
		Period:     period,
		StartDate:  from,
		EndDate:    to,
		Aggregated: bucketEntries(entries, period),
		RawData:    entries,
	}, nil
}

// CategoryBreakdown возвращает разбивку следа по категориям за окно дат:
// 1. Валидирует период и вычисляет окно по умолчанию
// 2. Читает все строки окна и суммирует carbon_total по категориям
// 3. Округляет суммы до 2 знаков и считает целые проценты от общего итога
// При нулевом итоге все проценты равны 0 (деления на ноль нет)
func (s *FootprintService) CategoryBreakdown(ctx context.Context, userID, period string, start, end *time.Time) (*BreakdownResult, error) {
	if !model.IsValidTimeframe(period) {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}
	from, to := breakdownWindow(period, start, end)
	entries, err := s.repo.ListEntriesRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	// суммируем по категориям с полной точностью
	totals := make(map[string]float64)
	for _, e := range entries {
		totals[e.Category] += e.CarbonTotal
	}
	// округленные значения и общий итог
	slices := make([]model.CategorySlice, 0, len(totals))
	var totalCarbon float64
	for category, sum := range totals {
		value := round2(sum)
		totalCarbon += value
		slices = append(slices, model.CategorySlice{Category: category, Value: value})
	}
	sort.Slice(slices, func(i, j int) bool { return slices[i].Category < slices[j].Category })
	// целые проценты от итога
	for i := range slices {
		if totalCarbon > 0 {
			slices[i].Percentage = int(math.Round(slices[i].Value / totalCarbon * 100))
		}
	}
	return &BreakdownResult{
		Period:      period,
		StartDate:   from,
		EndDate:     to,
		Categories:  slices,
		TotalCarbon: round2(totalCarbon),
	}, nil
}

// Goals возвращает цели пользователя, новые первыми
func (s *FootprintService) Goals(ctx context.Context, userID string) ([]model.Goal, error) {
	goals, err := s.repo.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []model.Goal{}
	}
	return goals, nil
}

// SaveGoal создает или обновляет цель пользователя:
// 1. Валидирует период и целевое значение
// 2. Вызывает UpsertGoal: на пару (user, timeframe) существует не более одной цели
// 3. Публикует сериализованную цель в лог
func (s *FootprintService) SaveGoal(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error) {
	if !model.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: unknown timeframe %q", ErrInvalidInput, timeframe)
	}
	if targetValue <= 0 {
		return nil, fmt.Errorf("%w: target_value must be positive", ErrInvalidInput)
	}
	goal, err := s.repo.UpsertGoal(ctx, userID, timeframe, targetValue, description)
	if err != nil {
		return nil, err
	}
	data, _ := json.Marshal(goal)
	_ = s.logger.PublishLog(data)
	return goal, nil
}

// bucketKey вычисляет ключ корзины для момента времени:
// для недель — ISO-дата понедельника той же недели (неделя начинается с понедельника,
// воскресенье относится к предыдущей неделе), для месяцев — YYYY-MM
func bucketKey(ts time.Time, period string) string {
	if period == "weekly" {
		offset := (int(ts.Weekday()) + 6) % 7
		return ts.AddDate(0, 0, -offset).Format("2006-01-02")
	}
	return ts.Format("2006-01")
}

// bucketEntries группирует строки журнала в корзины по календарным периодам
// Накопление идет с полной точностью, итог корзины округляется только на выходе
// Корзины отсортированы по ключу по возрастанию (совпадает с хронологией)
func bucketEntries(entries []model.FootprintEntry, period string) []model.PeriodBucket {
	buckets := make(map[string]*model.PeriodBucket)
	for _, e := range entries {
		key := bucketKey(e.LoggedAt, period)
		b, ok := buckets[key]
		if !ok {
			b = &model.PeriodBucket{Period: key, Categories: make(map[string]float64)}
			buckets[key] = b
		}
		b.TotalCarbon += e.CarbonTotal
		b.Count++
		b.Categories[e.Category] += e.CarbonTotal
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.PeriodBucket, 0, len(keys))
	for _, k := range keys {
		b := *buckets[k]
		b.TotalCarbon = round2(b.TotalCarbon)
		out = append(out, b)
	}
	return out
}

// round2 округляет значение до двух десятичных знаков
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
