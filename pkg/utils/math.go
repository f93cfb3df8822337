package utils

import (
	"math"
)

// math.go - математические утилиты маржинального ядра
//
// Назначение:
// Вспомогательные математические функции для расчётов по позициям.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - RoundToStep: округление объёма вниз до шага инструмента
// - ClampMin: ограничение снизу
// - CrossedUp / CrossedDown: проверка пересечения ценового уровня

// RoundToStep округляет значение ВНИЗ до ближайшего кратного step.
//
// Используется для округления объёма ордера до минимального шага
// инструмента. Округление вниз гарантирует, что мы не превысим
// доступные средства.
//
// Параметры:
//   - value: исходное значение (объём в монетах базового актива)
//   - step: минимальный шаг изменения объёма
//
// Возвращает:
//   - Округлённое значение, кратное step
//   - Если step <= 0, возвращает исходное значение
//
// Примеры:
//   - RoundToStep(0.123456, 0.001) = 0.123
//   - RoundToStep(1.999, 0.01) = 1.99
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Floor(value/step) * step
}

// ClampMin возвращает value, но не меньше min.
//
// Используется для floor'а PnL (убыток не глубже начальной маржи)
// и для выплат кошельку (не ниже нуля).
func ClampMin(value, min float64) float64 {
	if value < min {
		return min
	}
	return value
}

// CrossedUp возвращает true если цена достигла уровня level снизу:
// price >= level. Условие TP лонга, SL шорта и ликвидации шорта.
func CrossedUp(price, level float64) bool {
	return price >= level
}

// CrossedDown возвращает true если цена достигла уровня level сверху:
// price <= level. Условие SL лонга, TP шорта и ликвидации лонга.
func CrossedDown(price, level float64) bool {
	return price <= level
}
