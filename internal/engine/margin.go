package engine

import (
	"math"

	"futures/internal/models"
	"futures/pkg/utils"
)

// margin.go - маржинальная математика
//
// Все функции чистые (pure functions) без побочных эффектов.
// Изолированная маржа: equity позиции = начальная маржа.

// minLiquidationPrice - нижняя граница цены ликвидации.
// Нулевая цена ликвидации выглядела бы как "не задана" и выключала
// бы проверку ликвидации в сканере.
const minLiquidationPrice = 1e-9

// finite отсекает NaN и Inf. Сравнение NaN с нулём всегда false,
// поэтому guard вида entry <= 0 его не ловит.
func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// InitialMargin возвращает начальную маржу позиции в USDT
//
// Формула:
//
//	IM = E * qty / leverage
//
// Параметры:
//   - entry: цена входа E
//   - quantity: объём в монетах базового актива
//   - leverage: плечо
//
// При вырожденных входных данных (leverage < 1, entry <= 0, qty <= 0,
// NaN или Inf) возвращает 0.
func InitialMargin(entry, quantity float64, leverage int) float64 {
	if leverage < 1 || !finite(entry) || entry <= 0 || !finite(quantity) || quantity <= 0 {
		return 0
	}
	return entry * quantity / float64(leverage)
}

// LiquidationPrice возвращает цену ликвидации позиции
//
// Формулы (equity = IM, mmr = maintenance margin rate, F = буфер комиссий):
//
//	Long:  P_liq = (E*q - equity + F) / ((1 - mmr) * q)
//	Short: P_liq = (equity + E*q - F) / ((1 + mmr) * q)
//
// При вырожденных входных данных используется упрощённая формула
// без mmr и комиссий:
//
//	Long:  E * (1 - 1/leverage)
//	Short: E * (1 + 1/leverage)
//
// Результат всегда строго положителен: long с плечом 1 даёт
// E*(1-1/1) = 0, что поднимается до minLiquidationPrice - такая
// позиция ликвидируема только при полном обнулении цены.
func LiquidationPrice(side string, entry, quantity float64, leverage int, mmr, feeBuffer float64) float64 {
	if leverage < 1 || !finite(entry) || entry <= 0 {
		return 0
	}

	// Fallback без учёта mmr
	if !finite(quantity) || quantity <= 0 || !finite(mmr) || mmr < 0 || mmr >= 1 || !finite(feeBuffer) {
		lev := float64(leverage)
		if side == models.SideShort {
			return utils.ClampMin(entry*(1+1/lev), minLiquidationPrice)
		}
		return utils.ClampMin(entry*(1-1/lev), minLiquidationPrice)
	}

	notional := entry * quantity
	equity := notional / float64(leverage)

	var liq float64
	if side == models.SideShort {
		liq = (equity + notional - feeBuffer) / ((1 + mmr) * quantity)
	} else {
		liq = (notional - equity + feeBuffer) / ((1 - mmr) * quantity)
	}

	return utils.ClampMin(liq, minLiquidationPrice)
}

// UnrealizedPnl возвращает нереализованный PnL позиции
//
// Формула:
//
//	Long:  (current - open) * qty
//	Short: (open - current) * qty
func UnrealizedPnl(side string, open, current, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}
	if side == models.SideShort {
		return (open - current) * quantity
	}
	return (current - open) * quantity
}

// RealizedPnl возвращает реализованный PnL при закрытии
//
// Убыток ограничен начальной маржой: при изолированной марже
// трейдер не может потерять больше, чем зарезервировал.
func RealizedPnl(side string, open, close, quantity, initialMargin float64) float64 {
	return utils.ClampMin(UnrealizedPnl(side, open, close, quantity), -initialMargin)
}

// Payout возвращает сумму выплаты кошельку при закрытии позиции
//
//	payout = max(IM + PnL, 0)
func Payout(initialMargin, pnl float64) float64 {
	return utils.ClampMin(initialMargin+pnl, 0)
}
