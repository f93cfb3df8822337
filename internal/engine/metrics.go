package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики триггерного сканера
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ScanDuration - длительность одного прохода сканера
var ScanDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "scan_duration_ms",
		Help:      "Duration of a full scanner pass in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
)

// ScansTotal - количество завершённых проходов
var ScansTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "scans_total",
		Help:      "Total number of completed scanner passes",
	},
)

// ScansSkipped - проходы, пропущенные из-за ещё идущего предыдущего
var ScansSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "scans_skipped_total",
		Help:      "Scanner ticks skipped because the previous pass was still running",
	},
)

// TriggersTotal - сработавшие триггеры по типам
var TriggersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "triggers_total",
		Help:      "Total number of fired triggers",
	},
	[]string{"type"}, // limit_fill, take_profit, stop_loss, liquidation
)

// StalePriceSkips - позиции пропущенные из-за устаревшей цены
var StalePriceSkips = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "stale_price_skips_total",
		Help:      "Positions skipped because no fresh price was available",
	},
)

// InsufficientMarginTotal - отказы исполнения по нехватке средств
var InsufficientMarginTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "insufficient_margin_total",
		Help:      "Limit order fills rejected due to insufficient wallet balance",
	},
)

// OpenPositions - текущее количество открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "open_positions",
		Help:      "Current number of Filled positions",
	},
)

// PendingOrders - текущее количество ожидающих лимитных ордеров
var PendingOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futures",
		Subsystem: "engine",
		Name:      "pending_orders",
		Help:      "Current number of Pending limit orders",
	},
)
