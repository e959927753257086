package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики монитора доступности
var (
	// Метрики циклов опроса
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_poll_cycles_total",
			Help: "Общее количество циклов опроса по результату",
		},
		[]string{"outcome"},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bbdc_monitor_poll_duration_seconds",
			Help:    "Длительность цикла опроса в секундах",
			Buckets: prometheus.DefBuckets,
		},
	)

	SlotsObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_slots_observed_total",
			Help: "Общее количество наблюдаемых слотов",
		},
	)

	SlotsNewlyAvailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_slots_newly_available_total",
			Help: "Количество слотов, ставших доступными с прошлого цикла",
		},
	)

	// Метрики сессии
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_login_attempts_total",
			Help: "Попытки входа по результату",
		},
		[]string{"outcome"},
	)

	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bbdc_monitor_session_state",
			Help: "Текущее состояние сессии (0=logged_out, 1=awaiting_captcha, 2=logged_in)",
		},
	)

	SessionRestores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_session_restores_total",
			Help: "Количество восстановлений после непрошенного разлогина",
		},
	)

	// Метрики капчи
	CaptchaSolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_captcha_solves_total",
			Help: "Попытки решения капчи по способу и результату",
		},
		[]string{"method", "outcome"},
	)

	// Метрики уведомлений
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbdc_monitor_notifications_total",
			Help: "Отправленные уведомления по каналу и результату",
		},
		[]string{"channel", "status"},
	)
)
