package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"EcoTrackBackend/internal/model"
)

// mockFootprintRepo реализует интерфейс репозитория журнала следа для тестирования FootprintService.
// Поля-функции позволяют настроить возвращаемые значения и ошибки для каждого метода:
// - createFn: поведение CreateEntry
// - listFn: поведение ListEntries
// - listRangeFn: поведение ListEntriesRange
// - listGoalsFn: поведение ListGoals
// - upsertGoalFn: поведение UpsertGoal
type mockFootprintRepo struct {
	createFn     func(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error)
	listFn       func(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error)
	listRangeFn  func(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error)
	listGoalsFn  func(ctx context.Context, userID string) ([]model.Goal, error)
	upsertGoalFn func(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error)
}

func (m *mockFootprintRepo) CreateEntry(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error) {
	return m.createFn(ctx, e)
}
func (m *mockFootprintRepo) ListEntries(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error) {
	return m.listFn(ctx, userID, start, end, limit, offset)
}
func (m *mockFootprintRepo) ListEntriesRange(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error) {
	return m.listRangeFn(ctx, userID, start, end)
}
func (m *mockFootprintRepo) ListGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	return m.listGoalsFn(ctx, userID)
}
func (m *mockFootprintRepo) UpsertGoal(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error) {
	return m.upsertGoalFn(ctx, userID, timeframe, targetValue, description)
}

// mockLogger симулирует логгер, принимает данные для публикации
// pub: функция, записывающая переданное сообщение
type mockLogger struct {
	pub func(data []byte) error
}

func (m *mockLogger) PublishLog(data []byte) error {
	if m.pub == nil {
		return nil
	}
	return m.pub(data)
}

// strPtr возвращает указатель на строку
func strPtr(s string) *string {
	return &s
}

// entry собирает корректную запись журнала с ручным источником
func entry(carbon float64, category string, loggedAt time.Time) model.FootprintEntry {
	return model.FootprintEntry{
		UserID:      "user-1",
		ManualItem:  strPtr("item"),
		Amount:      1,
		CarbonTotal: carbon,
		Category:    category,
		LoggedAt:    loggedAt,
	}
}

// TestTrack_Success проверяет сценарий успешного создания записи журнала:
// подстановку текущего времени, вставку и публикацию лога
func TestTrack_Success(t *testing.T) {
	// Arrange: репозиторий возвращает запись с присвоенным id
	var inserted *model.FootprintEntry
	repo := &mockFootprintRepo{createFn: func(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error) {
		inserted = e
		created := *e
		created.ID = 42
		return &created, nil
	}}
	var published []byte
	logger := &mockLogger{pub: func(data []byte) error {
		published = data
		return nil
	}}
	svc := NewFootprintService(repo, logger)

	e := entry(2.5, "food", time.Time{})
	created, err := svc.Track(context.Background(), &e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != 42 {
		t.Error("expected created entry with assigned id")
	}
	// незаполненный logged_at заменяется текущим временем
	if inserted.LoggedAt.IsZero() {
		t.Error("expected logged_at to be filled")
	}
	// событие трекинга опубликовано в лог
	if len(published) == 0 {
		t.Error("expected tracking event to be published")
	}
}

// TestTrack_Validation перебирает некорректные записи:
// каждая должна отклоняться с ErrInvalidInput до обращения к репозиторию
func TestTrack_Validation(t *testing.T) {
	repoCalled := false
	repo := &mockFootprintRepo{createFn: func(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error) {
		repoCalled = true
		return e, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})
	now := time.Now()

	noUser := entry(1, "food", now)
	noUser.UserID = ""

	bothSources := entry(1, "food", now)
	bothSources.ProductBarcode = strPtr("4006381333931")

	noSources := entry(1, "food", now)
	noSources.ManualItem = nil

	zeroAmount := entry(1, "food", now)
	zeroAmount.Amount = 0

	hugeAmount := entry(1, "food", now)
	hugeAmount.Amount = 10001

	zeroCarbon := entry(0, "food", now)
	hugeCarbon := entry(100001, "food", now)
	badCategory := entry(1, "vehicles", now)

	cases := []struct {
		name string
		e    model.FootprintEntry
	}{
		{"missing user", noUser},
		{"both sources set", bothSources},
		{"no source set", noSources},
		{"zero amount", zeroAmount},
		{"amount above limit", hugeAmount},
		{"zero carbon", zeroCarbon},
		{"carbon above limit", hugeCarbon},
		{"unknown category", badCategory},
	}
	for _, tc := range cases {
		e := tc.e
		_, err := svc.Track(context.Background(), &e)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
	if repoCalled {
		t.Error("repository must not be called for invalid entries")
	}
}

// TestHistory_WeeklyBucketing проверяет группировку в недельные корзины:
// среда относится к корзине понедельника той же недели,
// воскресенье — к корзине понедельника предыдущих шести дней
func TestHistory_WeeklyBucketing(t *testing.T) {
	// 2026-03-02 — понедельник; 2026-03-04 — среда; 2026-03-08 — воскресенье
	wednesday := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	repo := &mockFootprintRepo{listFn: func(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error) {
		return []model.FootprintEntry{
			entry(1.5, "food", wednesday),
			entry(2.25, "transport", sunday),
			entry(4, "energy", nextMonday),
		}, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	res, err := svc.History(context.Background(), "user-1", "weekly", nil, nil, 1, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Aggregated) != 2 {
		t.Fatalf("expected 2 weekly buckets, got %d", len(res.Aggregated))
	}
	// среда и воскресенье попадают в корзину понедельника 2026-03-02
	first := res.Aggregated[0]
	if first.Period != "2026-03-02" {
		t.Errorf("unexpected first bucket key: %s", first.Period)
	}
	if first.Count != 2 || first.TotalCarbon != 3.75 {
		t.Errorf("unexpected first bucket aggregate: %+v", first)
	}
	if first.Categories["food"] != 1.5 || first.Categories["transport"] != 2.25 {
		t.Errorf("unexpected first bucket categories: %+v", first.Categories)
	}
	// следующий понедельник открывает новую корзину
	if res.Aggregated[1].Period != "2026-03-09" || res.Aggregated[1].Count != 1 {
		t.Errorf("unexpected second bucket: %+v", res.Aggregated[1])
	}
	// сырые строки страницы сохраняются в ответе
	if len(res.RawData) != 3 {
		t.Errorf("expected raw data passthrough, got %d rows", len(res.RawData))
	}
}

// TestHistory_MonthlyBucketing проверяет группировку в месячные корзины и округление итога
func TestHistory_MonthlyBucketing(t *testing.T) {
	repo := &mockFootprintRepo{listFn: func(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error) {
		return []model.FootprintEntry{
			entry(0.105, "food", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)),
			entry(0.105, "food", time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)),
			entry(7, "misc", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		}, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	res, err := svc.History(context.Background(), "user-1", "monthly", nil, nil, 1, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Aggregated) != 2 {
		t.Fatalf("expected 2 monthly buckets, got %d", len(res.Aggregated))
	}
	if res.Aggregated[0].Period != "2026-01" || res.Aggregated[1].Period != "2026-02" {
		t.Errorf("unexpected bucket keys: %+v", res.Aggregated)
	}
	// накопление с полной точностью, округление итога на выходе: 0.105+0.105=0.21
	if res.Aggregated[0].TotalCarbon != 0.21 {
		t.Errorf("expected rounded bucket total 0.21, got %v", res.Aggregated[0].TotalCarbon)
	}
}

// TestHistory_Defaults проверяет валидацию периода и дефолтные окна/пагинацию:
// для недель окно по умолчанию — 30 дней, для месяцев — 12 месяцев
func TestHistory_Defaults(t *testing.T) {
	var gotStart, gotEnd time.Time
	var gotLimit, gotOffset int
	repo := &mockFootprintRepo{listFn: func(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error) {
		gotStart, gotEnd = start, end
		gotLimit, gotOffset = limit, offset
		return nil, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	// некорректный период
	_, err := svc.History(context.Background(), "user-1", "daily", nil, nil, 1, 50)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown period, got %v", err)
	}

	// окно по умолчанию для недель: 30 дней от явного конца
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	_, err = svc.History(context.Background(), "user-1", "weekly", nil, &end, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotEnd.Equal(end) || !gotStart.Equal(end.AddDate(0, 0, -30)) {
		t.Errorf("unexpected weekly window: %v .. %v", gotStart, gotEnd)
	}
	// нормализация пагинации: страница 1, лимит 50
	if gotLimit != 50 || gotOffset != 0 {
		t.Errorf("unexpected pagination args: limit=%d offset=%d", gotLimit, gotOffset)
	}

	// окно по умолчанию для месяцев: 12 месяцев от явного конца
	_, _ = svc.History(context.Background(), "user-1", "monthly", nil, &end, 2, 10)
	if !gotStart.Equal(end.AddDate(0, -12, 0)) {
		t.Errorf("unexpected monthly window start: %v", gotStart)
	}
	if gotLimit != 10 || gotOffset != 10 {
		t.Errorf("unexpected pagination args: limit=%d offset=%d", gotLimit, gotOffset)
	}
}

// TestCategoryBreakdown проверяет разбивку по категориям:
// суммы округляются до 2 знаков, проценты целые от общего итога,
// категории отсортированы по алфавиту
func TestCategoryBreakdown(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockFootprintRepo{listRangeFn: func(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error) {
		return []model.FootprintEntry{
			entry(4, "food", now),
			entry(6, "food", now),
			entry(5, "transport", now),
		}, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	res, err := svc.CategoryBreakdown(context.Background(), "user-1", "monthly", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalCarbon != 15 {
		t.Errorf("expected total 15, got %v", res.TotalCarbon)
	}
	if len(res.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(res.Categories))
	}
	food, transport := res.Categories[0], res.Categories[1]
	if food.Category != "food" || transport.Category != "transport" {
		t.Errorf("expected alphabetical order, got %+v", res.Categories)
	}
	if food.Value != 10 || food.Percentage != 67 {
		t.Errorf("unexpected food slice: %+v", food)
	}
	if transport.Value != 5 || transport.Percentage != 33 {
		t.Errorf("unexpected transport slice: %+v", transport)
	}
}

// TestCategoryBreakdown_Empty проверяет пустое окно: нулевой итог, нет деления на ноль
func TestCategoryBreakdown_Empty(t *testing.T) {
	repo := &mockFootprintRepo{listRangeFn: func(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error) {
		return nil, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	res, err := svc.CategoryBreakdown(context.Background(), "user-1", "weekly", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalCarbon != 0 || len(res.Categories) != 0 {
		t.Errorf("expected empty breakdown, got %+v", res)
	}
}

// TestCategoryBreakdown_Window проверяет окно по умолчанию:
// 7 дней для недель и 1 месяц для месяцев от явного конца
func TestCategoryBreakdown_Window(t *testing.T) {
	var gotStart, gotEnd time.Time
	repo := &mockFootprintRepo{listRangeFn: func(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error) {
		gotStart, gotEnd = start, end
		return nil, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	end := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.CategoryBreakdown(context.Background(), "user-1", "weekly", nil, &end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotEnd.Equal(end) || !gotStart.Equal(end.AddDate(0, 0, -7)) {
		t.Errorf("unexpected weekly window: %v .. %v", gotStart, gotEnd)
	}

	_, _ = svc.CategoryBreakdown(context.Background(), "user-1", "monthly", nil, &end)
	if !gotStart.Equal(end.AddDate(0, -1, 0)) {
		t.Errorf("unexpected monthly window start: %v", gotStart)
	}
}

// TestGoals проверяет чтение целей: nil от репозитория превращается в пустой список
func TestGoals(t *testing.T) {
	repo := &mockFootprintRepo{listGoalsFn: func(ctx context.Context, userID string) ([]model.Goal, error) {
		return nil, nil
	}}
	svc := NewFootprintService(repo, &mockLogger{})

	goals, err := svc.Goals(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if goals == nil || len(goals) != 0 {
		t.Error("expected empty non-nil goals slice")
	}
}

// TestSaveGoal проверяет сохранение цели:
// 1) Валидация периода и целевого значения
// 2) Успешный upsert с публикацией в лог
func TestSaveGoal(t *testing.T) {
	goal := &model.Goal{ID: 1, UserID: "user-1", TargetValue: 25, Timeframe: "weekly"}
	repo := &mockFootprintRepo{upsertGoalFn: func(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error) {
		if userID != "user-1" || timeframe != "weekly" || targetValue != 25 {
			t.Fatalf("unexpected args: %s %s %v", userID, timeframe, targetValue)
		}
		return goal, nil
	}}
	published := false
	logger := &mockLogger{pub: func(data []byte) error {
		published = true
		return nil
	}}
	svc := NewFootprintService(repo, logger)

	// некорректный период
	_, err := svc.SaveGoal(context.Background(), "user-1", "daily", 25, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown timeframe, got %v", err)
	}
	// неположительное целевое значение
	_, err = svc.SaveGoal(context.Background(), "user-1", "weekly", 0, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for non-positive target, got %v", err)
	}

	got, err := svc.SaveGoal(context.Background(), "user-1", "weekly", 25, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 {
		t.Error("unexpected goal result")
	}
	if !published {
		t.Error("expected goal event to be published")
	}
}
