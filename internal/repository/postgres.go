package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"EcoTrackBackend/internal/model"
)

// FootprintRepository реализует доступ к таблицам footprints и goals в Postgres
type FootprintRepository struct {
	db *sql.DB
}

// NewFootprintRepository создает новый репозиторий журнала следа
func NewFootprintRepository(db *sql.DB) *FootprintRepository {
	return &FootprintRepository{db: db}
}

// CreateEntry добавляет новую запись журнала следа
// Запись неизменяема после вставки: путей обновления и удаления нет
func (r *FootprintRepository) CreateEntry(ctx context.Context, e *model.FootprintEntry) (*model.FootprintEntry, error) {
	// created_at и updated_at заполняются дефолтами БД
	query := `INSERT INTO footprints(user_id, product_barcode, manual_item, amount, carbon_total, category, logged_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	created := *e
	err := r.db.QueryRowContext(ctx, query,
		e.UserID, e.ProductBarcode, e.ManualItem, e.Amount, e.CarbonTotal, e.Category, e.LoggedAt).
		Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert footprint entry: %w", err)
	}
	return &created, nil
}

// ListEntries возвращает записи пользователя в окне [start, end],
// отсортированные по logged_at по возрастанию, с окном limit/offset по сырым строкам
func (r *FootprintRepository) ListEntries(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]model.FootprintEntry, error) {
	query := `SELECT id, user_id, product_barcode, manual_item, amount, carbon_total, category, logged_at, created_at, updated_at
		FROM footprints
		WHERE user_id=$1 AND logged_at >= $2 AND logged_at <= $3
		ORDER BY logged_at ASC
		LIMIT $4 OFFSET $5`
	rows, err := r.db.QueryContext(ctx, query, userID, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select footprint entries: %w", err)
	}
	defer rows.Close()
	var entries []model.FootprintEntry
	for rows.Next() {
		var e model.FootprintEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductBarcode, &e.ManualItem,
			&e.Amount, &e.CarbonTotal, &e.Category, &e.LoggedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan footprint entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read footprint entries: %w", err)
	}
	return entries, nil
}

// ListEntriesRange возвращает все записи пользователя в окне [start, end] без пагинации
// Используется разбивкой по категориям, где суммируется всё окно целиком
func (r *FootprintRepository) ListEntriesRange(ctx context.Context, userID string, start, end time.Time) ([]model.FootprintEntry, error) {
	query := `SELECT id, user_id, product_barcode, manual_item, amount, carbon_total, category, logged_at, created_at, updated_at
		FROM footprints
		WHERE user_id=$1 AND logged_at >= $2 AND logged_at <= $3
		ORDER BY logged_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to select footprint entries range: %w", err)
	}
	defer rows.Close()
	var entries []model.FootprintEntry
	for rows.Next() {
		var e model.FootprintEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductBarcode, &e.ManualItem,
			&e.Amount, &e.CarbonTotal, &e.Category, &e.LoggedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan footprint entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read footprint entries: %w", err)
	}
	return entries, nil
}

// ListGoals возвращает цели пользователя, новые первыми
func (r *FootprintRepository) ListGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	query := `SELECT id, user_id, target_value, timeframe, description, created_at, updated_at
		FROM goals WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select goals: %w", err)
	}
	defer rows.Close()
	var goals []model.Goal
	for rows.Next() {
		var g model.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.TargetValue, &g.Timeframe, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read goals: %w", err)
	}
	return goals, nil
}

// UpsertGoal создает или обновляет цель для пары (user_id, timeframe), с блокировкой и транзакцией
// На пару существует не более одной цели: повторная запись обновляет существующую
func (r *FootprintRepository) UpsertGoal(ctx context.Context, userID, timeframe string, targetValue float64, description *string) (*model.Goal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	// проверка существования цели с блокировкой
	var existingID int
	row := tx.QueryRowContext(ctx, `SELECT id FROM goals WHERE user_id=$1 AND timeframe=$2 FOR UPDATE`, userID, timeframe)
	err = row.Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to select goal for upsert: %w", err)
	}
	var g model.Goal
	if err == sql.ErrNoRows {
		// вставка новой цели
		insertQuery := `INSERT INTO goals(user_id, target_value, timeframe, description)
			VALUES($1, $2, $3, $4)
			RETURNING id, user_id, target_value, timeframe, description, created_at, updated_at`
		row = tx.QueryRowContext(ctx, insertQuery, userID, targetValue, timeframe, description)
	} else {
		// обновление существующей цели
		updateQuery := `UPDATE goals SET target_value=$1, description=$2, updated_at=now() WHERE id=$3
			RETURNING id, user_id, target_value, timeframe, description, created_at, updated_at`
		row = tx.QueryRowContext(ctx, updateQuery, targetValue, description, existingID)
	}
	if err := row.Scan(&g.ID, &g.UserID, &g.TargetValue, &g.Timeframe, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &g, nil
}
