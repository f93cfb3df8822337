package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики ценового фида
// ============================================================

// StreamsConnected - количество открытых WebSocket потоков
var StreamsConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futures",
		Subsystem: "feed",
		Name:      "streams_connected",
		Help:      "Number of currently connected price streams",
	},
)

// StreamMessages - обработанные сообщения потоков
var StreamMessages = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "feed",
		Name:      "stream_messages_total",
		Help:      "Total number of processed trade stream messages",
	},
)

// StreamReconnects - попытки переподключения потоков
var StreamReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "feed",
		Name:      "stream_reconnects_total",
		Help:      "Total number of stream reconnect attempts",
	},
)

// RestFallbacks - обращения к REST fallback
var RestFallbacks = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "futures",
		Subsystem: "feed",
		Name:      "rest_fallbacks_total",
		Help:      "Price lookups that had to fall back to REST",
	},
)

// WatchedSymbols - количество символов с активными подписчиками
var WatchedSymbols = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futures",
		Subsystem: "feed",
		Name:      "watched_symbols",
		Help:      "Number of symbols with at least one subscriber",
	},
)
