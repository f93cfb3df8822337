package repository

import (
	"database/sql"
	"errors"
	"time"

	"futures/internal/models"
)

// Ошибки репозитория истории
var (
	ErrHistoryNotFound = errors.New("history record not found")
)

// HistoryRepository - работа с таблицей trade_history
//
// На позицию приходится не более одной записи (UNIQUE position_id).
// Запись создаётся при исполнении ордера и финализируется при
// терминальном закрытии.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository создает новый экземпляр репозитория
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Upsert записывает факт исполнения или отмены ордера
//
// Повторный вызов по той же позиции (retry после сбоя) обновляет
// существующую запись, а не создаёт дубликат.
func (r *HistoryRepository) Upsert(rec *models.HistoryRecord) error {
	query := `
		INSERT INTO trade_history (id, position_id, account_id, symbol, side, leverage, margin_type,
			quantity, open_price, close_price, pnl, status, executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (position_id)
		DO UPDATE SET open_price = $9, status = $12, executed_at = $13`

	rec.CreatedAt = time.Now()

	_, err := r.db.Exec(
		query,
		rec.ID,
		rec.PositionID,
		rec.AccountID,
		rec.Symbol,
		rec.Side,
		rec.Leverage,
		rec.MarginType,
		rec.Quantity,
		rec.OpenPrice,
		rec.ClosePrice,
		rec.Pnl,
		rec.Status,
		rec.ExecutedAt,
		rec.CreatedAt,
	)

	return err
}

// Finalize дописывает в запись результат терминального закрытия
func (r *HistoryRepository) Finalize(positionID string, closePrice, pnl float64, status string) error {
	query := `
		UPDATE trade_history
		SET close_price = $1, pnl = $2, status = $3
		WHERE position_id = $4`

	result, err := r.db.Exec(query, closePrice, pnl, status, positionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrHistoryNotFound
	}

	return nil
}

// ListByAccount возвращает страницу истории сделок аккаунта
// (новые первыми)
func (r *HistoryRepository) ListByAccount(accountID string, limit, offset int) ([]*models.HistoryRecord, error) {
	query := `
		SELECT id, position_id, account_id, symbol, side, leverage, margin_type,
			quantity, open_price, close_price, pnl, status, executed_at, created_at
		FROM trade_history
		WHERE account_id = $1
		ORDER BY executed_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.HistoryRecord
	for rows.Next() {
		rec := &models.HistoryRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.PositionID,
			&rec.AccountID,
			&rec.Symbol,
			&rec.Side,
			&rec.Leverage,
			&rec.MarginType,
			&rec.Quantity,
			&rec.OpenPrice,
			&rec.ClosePrice,
			&rec.Pnl,
			&rec.Status,
			&rec.ExecutedAt,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteOlderThan удаляет записи старше указанной даты
func (r *HistoryRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM trade_history WHERE created_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
