package repository

import (
	"context"
	"database/sql"
	"log"
	"time"

	"EcoTrackBackend/internal/model"
)

// ClickhouseRepo реализует пакетную запись событий журнала следа в ClickHouse
type ClickhouseRepo struct {
	db *sql.DB
}

// NewClickhouseRepo создает новый репозиторий для ClickHouse
func NewClickhouseRepo(db *sql.DB) *ClickhouseRepo {
	return &ClickhouseRepo{db: db}
}

// BatchInsertEvents записывает пакет событий трекинга в таблицу footprint_events_log
// Событие содержит данные записи журнала и время события
func (r *ClickhouseRepo) BatchInsertEvents(ctx context.Context, events []model.FootprintEntry) error {
	// начинаем 'транзакцию' для batch insert (clickhouse-go собирает блок при PrepareContext)
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	// логируем количество событий для вставки
	log.Printf("Начало пакетной вставки %d событий в ClickHouse", len(events))
	// PrepareContext для одной строки; clickhouse-go соберёт несколько Exec в один блок
	query := `INSERT INTO footprint_events_log (Id, UserId, ProductBarcode, ManualItem, Amount, CarbonTotal, Category, LoggedAt, EventTime) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	// выполняем ExecContext для каждой записи; драйвер соберёт весь пакет
	for _, e := range events {
		barcode := ""
		if e.ProductBarcode != nil {
			barcode = *e.ProductBarcode
		}
		manual := ""
		if e.ManualItem != nil {
			manual = *e.ManualItem
		}
		_, err := stmt.ExecContext(ctx,
			e.ID, e.UserID, barcode, manual,
			e.Amount, e.CarbonTotal, e.Category, e.LoggedAt,
			time.Now(),
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	// коммитим транзакцию
	if err := tx.Commit(); err != nil {
		return err
	}
	// логируем успешную вставку
	log.Printf("Успешно вставлено %d событий в ClickHouse", len(events))
	return nil
}
