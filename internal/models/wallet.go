package models

import "time"

// WalletBalance представляет баланс кошелька по одному активу
//
// Баланс неотрицателен по построению: списание выполняется только
// условным декрементом (balance >= amount) на стороне БД.
type WalletBalance struct {
	AccountID string    `json:"account_id" db:"account_id"`
	Asset     string    `json:"asset" db:"asset"` // USDT
	Balance   float64   `json:"balance" db:"balance"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AssetUSDT - единственный расчётный актив маржинального ядра
const AssetUSDT = "USDT"
