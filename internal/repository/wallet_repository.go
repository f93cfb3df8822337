package repository

import (
	"database/sql"
	"errors"
	"time"

	"futures/internal/models"
)

// Ошибки репозитория кошелька
var (
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInsufficientFunds возвращается когда условное списание
	// не прошло проверку balance >= amount
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// WalletRepository - работа с таблицей wallet_balances
//
// Резервирование маржи выполняется условным декрементом на стороне БД:
// UPDATE ... WHERE balance >= amount. Баланс не может уйти в минус
// даже при конкурентных списаниях.
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository создает новый экземпляр репозитория
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetBalance возвращает баланс аккаунта по активу
func (r *WalletRepository) GetBalance(accountID, asset string) (*models.WalletBalance, error) {
	query := `
		SELECT account_id, asset, balance, updated_at
		FROM wallet_balances
		WHERE account_id = $1 AND asset = $2`

	wb := &models.WalletBalance{}
	err := r.db.QueryRow(query, accountID, asset).Scan(
		&wb.AccountID,
		&wb.Asset,
		&wb.Balance,
		&wb.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	return wb, nil
}

// Reserve списывает amount с баланса, только если средств достаточно
//
// Возвращает:
//   - nil: средства списаны
//   - ErrInsufficientFunds: баланс меньше amount (или кошелька нет)
func (r *WalletRepository) Reserve(accountID, asset string, amount float64) error {
	query := `
		UPDATE wallet_balances
		SET balance = balance - $1, updated_at = $2
		WHERE account_id = $3 AND asset = $4 AND balance >= $1`

	result, err := r.db.Exec(query, amount, time.Now(), accountID, asset)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientFunds
	}

	return nil
}

// Credit безусловно зачисляет amount на баланс
//
// Upsert: создаёт кошелёк при первом зачислении. Используется для
// возврата маржи при отмене и для выплаты IM + PnL при закрытии.
func (r *WalletRepository) Credit(accountID, asset string, amount float64) error {
	query := `
		INSERT INTO wallet_balances (account_id, asset, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, asset)
		DO UPDATE SET balance = wallet_balances.balance + $3, updated_at = $4`

	_, err := r.db.Exec(query, accountID, asset, amount, time.Now())
	return err
}
