package repository

import (
	"database/sql"
	"errors"
	"time"

	"futures/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
	// ErrNotInExpectedState возвращается когда условное обновление статуса
	// не затронуло ни одной строки: кто-то успел перевести позицию раньше
	ErrNotInExpectedState = errors.New("position not in expected state")
)

// positionColumns - полный список колонок positions в порядке Scan
const positionColumns = `id, account_id, symbol, side, leverage, margin_type, order_type,
		limit_price, quantity, take_profit_price, stop_loss_price,
		open_price, liquidation_price, initial_margin,
		close_price, pnl, close_reason, status,
		executed_at, closed_at, created_at, updated_at`

// PositionRepository - работа с таблицей positions
//
// Переходы статусов выполняются условными UPDATE (compare-and-swap):
// WHERE status = <ожидаемый>. Ноль затронутых строк означает, что
// конкурентная операция выиграла гонку - это и есть сериализация
// по id без мьютексов в приложении.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create создает запись о позиции (Pending для лимитного ордера,
// Filled для рыночного - поля исполнения уже заполнены сервисом)
func (r *PositionRepository) Create(p *models.Position) error {
	query := `
		INSERT INTO positions (id, account_id, symbol, side, leverage, margin_type, order_type,
			limit_price, quantity, take_profit_price, stop_loss_price,
			open_price, liquidation_price, initial_margin,
			close_price, pnl, close_reason, status,
			executed_at, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(
		query,
		p.ID,
		p.AccountID,
		p.Symbol,
		p.Side,
		p.Leverage,
		p.MarginType,
		p.OrderType,
		p.LimitPrice,
		p.Quantity,
		p.TakeProfitPrice,
		p.StopLossPrice,
		p.OpenPrice,
		p.LiquidationPrice,
		p.InitialMargin,
		p.ClosePrice,
		p.Pnl,
		p.CloseReason,
		p.Status,
		p.ExecutedAt,
		p.ClosedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)

	return err
}

// GetByID возвращает позицию по ID
func (r *PositionRepository) GetByID(id string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p := &models.Position{}
	err := r.db.QueryRow(query, id).Scan(
		&p.ID,
		&p.AccountID,
		&p.Symbol,
		&p.Side,
		&p.Leverage,
		&p.MarginType,
		&p.OrderType,
		&p.LimitPrice,
		&p.Quantity,
		&p.TakeProfitPrice,
		&p.StopLossPrice,
		&p.OpenPrice,
		&p.LiquidationPrice,
		&p.InitialMargin,
		&p.ClosePrice,
		&p.Pnl,
		&p.CloseReason,
		&p.Status,
		&p.ExecutedAt,
		&p.ClosedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return p, nil
}

// scanPositions читает все строки курсора в слайс позиций
func scanPositions(rows *sql.Rows) ([]*models.Position, error) {
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p := &models.Position{}
		err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&p.Symbol,
			&p.Side,
			&p.Leverage,
			&p.MarginType,
			&p.OrderType,
			&p.LimitPrice,
			&p.Quantity,
			&p.TakeProfitPrice,
			&p.StopLossPrice,
			&p.OpenPrice,
			&p.LiquidationPrice,
			&p.InitialMargin,
			&p.ClosePrice,
			&p.Pnl,
			&p.CloseReason,
			&p.Status,
			&p.ExecutedAt,
			&p.ClosedAt,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// ListOpenByAccount возвращает нетерминальные позиции аккаунта
// (Pending ордера и открытые Filled позиции)
func (r *PositionRepository) ListOpenByAccount(accountID string) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE account_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, accountID, models.StatusPending, models.StatusFilled)
	if err != nil {
		return nil, err
	}

	return scanPositions(rows)
}

// ListOpen возвращает все нетерминальные позиции (для восстановления
// подписок на цены после рестарта)
func (r *PositionRepository) ListOpen() ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status IN ($1, $2)
		ORDER BY created_at`

	rows, err := r.db.Query(query, models.StatusPending, models.StatusFilled)
	if err != nil {
		return nil, err
	}

	return scanPositions(rows)
}

// PageCursor - keyset-курсор постраничной выборки по (created_at, id)
//
// Нулевое значение означает "с начала". В отличие от OFFSET курсор
// не сдвигается, когда строки предыдущих страниц покидают выборку
// (исполнение или закрытие в том же цикле сканера): проход остаётся
// исчерпывающим.
type PageCursor struct {
	CreatedAt time.Time
	ID        string
}

// After возвращает курсор, указывающий за позицию p
func After(p *models.Position) PageCursor {
	return PageCursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// ListPendingLimit возвращает страницу ожидающих лимитных ордеров
// после курсора (старые первыми)
func (r *PositionRepository) ListPendingLimit(limit int, after PageCursor) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1 AND order_type = $2 AND (created_at, id) > ($3, $4)
		ORDER BY created_at, id
		LIMIT $5`

	rows, err := r.db.Query(query, models.StatusPending, models.OrderLimit,
		after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, err
	}

	return scanPositions(rows)
}

// ListFilled возвращает страницу открытых позиций после курсора
// для проверки триггеров
func (r *PositionRepository) ListFilled(limit int, after PageCursor) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1 AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id
		LIMIT $4`

	rows, err := r.db.Query(query, models.StatusFilled, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, err
	}

	return scanPositions(rows)
}

// MarkFilled переводит Pending -> Filled (исполнение лимитного ордера)
//
// Условный UPDATE: при гонке со второй операцией исполнения или с
// отменой затронет 0 строк и вернёт ErrNotInExpectedState.
func (r *PositionRepository) MarkFilled(id string, openPrice, liquidationPrice, initialMargin float64, executedAt time.Time) error {
	query := `
		UPDATE positions
		SET status = $1, open_price = $2, liquidation_price = $3, initial_margin = $4,
			executed_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8`

	result, err := r.db.Exec(query,
		models.StatusFilled, openPrice, liquidationPrice, initialMargin,
		executedAt, time.Now(), id, models.StatusPending)
	if err != nil {
		return err
	}

	return r.checkTransition(result, id)
}

// MarkClosed переводит Filled -> Closed|Liquidated
//
// Терминальный статус выводится из причины закрытия. Ровно одна
// конкурентная MarkClosed по данному id успевает первой - остальные
// получают ErrNotInExpectedState и не трогают кошелёк повторно.
func (r *PositionRepository) MarkClosed(id string, closePrice, pnl float64, reason string, closedAt time.Time) error {
	query := `
		UPDATE positions
		SET status = $1, close_price = $2, pnl = $3, close_reason = $4,
			closed_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8`

	result, err := r.db.Exec(query,
		models.StatusForReason(reason), closePrice, pnl, reason,
		closedAt, time.Now(), id, models.StatusFilled)
	if err != nil {
		return err
	}

	return r.checkTransition(result, id)
}

// MarkCancelled переводит Pending -> Cancelled (отмена лимитного ордера)
func (r *PositionRepository) MarkCancelled(id string) error {
	query := `
		UPDATE positions
		SET status = $1, close_reason = $2, closed_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6`

	now := time.Now()
	result, err := r.db.Exec(query,
		models.StatusCancelled, models.ReasonCancelled, now, now,
		id, models.StatusPending)
	if err != nil {
		return err
	}

	return r.checkTransition(result, id)
}

// checkTransition интерпретирует результат условного UPDATE:
// 0 затронутых строк - либо позиции нет, либо она уже не в ожидаемом статусе
func (r *PositionRepository) checkTransition(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var status string
		err := r.db.QueryRow(`SELECT status FROM positions WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPositionNotFound
		}
		if err != nil {
			return err
		}
		return ErrNotInExpectedState
	}

	return nil
}

// CountByStatus возвращает количество позиций с определенным статусом
func (r *PositionRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM positions WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
