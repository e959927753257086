package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bbdc_booking_monitor/internal/storage"
	"bbdc_booking_monitor/internal/storage/models"
	"bbdc_booking_monitor/pkg/logger"
	"bbdc_booking_monitor/pkg/metrics"
)

// TextSender — канал, принимающий текстовые сообщения (Telegram)
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

// Dispatcher рассылает уведомления по всем настроенным каналам.
// Доставка best-effort: отказ канала логируется и не прерывает остальные,
// Notify никогда не возвращает ошибку.
type Dispatcher struct {
	telegram TextSender
	desktop  *DesktopChannel
	journal  storage.NotificationJournal
	log      *logger.Logger
}

// NewDispatcher создает диспетчер. telegram и journal могут быть nil.
func NewDispatcher(telegram TextSender, desktop *DesktopChannel, journal storage.NotificationJournal, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		telegram: telegram,
		desktop:  desktop,
		journal:  journal,
		log:      log,
	}
}

// Notify доставляет уведомление во все каналы
func (d *Dispatcher) Notify(ctx context.Context, title, body string) {
	var delivered []string

	if d.desktop != nil {
		if err := d.desktop.Notify(title, body); err != nil {
			metrics.NotificationsSent.WithLabelValues("desktop", "error").Inc()
			d.log.Warn("desktop notification failed", logger.Error(err))
		} else {
			metrics.NotificationsSent.WithLabelValues("desktop", "ok").Inc()
			delivered = append(delivered, "desktop")
		}
	}

	if d.telegram != nil {
		text := title
		if body != "" {
			text = title + "\n" + body
		}
		if err := d.telegram.SendText(ctx, text); err != nil {
			metrics.NotificationsSent.WithLabelValues("telegram", "error").Inc()
			d.log.Warn("telegram notification failed", logger.Error(err))
		} else {
			metrics.NotificationsSent.WithLabelValues("telegram", "ok").Inc()
			delivered = append(delivered, "telegram")
		}
	}

	d.log.Info("notification dispatched",
		logger.String("title", title),
		logger.String("channels", strings.Join(delivered, ",")))

	d.record(ctx, title, body, delivered)
}

// record пишет уведомление в журнал аудита, ошибки только логируются
func (d *Dispatcher) record(ctx context.Context, title, body string, channels []string) {
	if d.journal == nil {
		return
	}
	rec := &models.NotificationRecord{
		ID:       uuid.New().String(),
		SentAt:   time.Now(),
		Title:    title,
		Body:     body,
		Channels: strings.Join(channels, ","),
	}
	if err := d.journal.RecordNotification(ctx, rec); err != nil {
		d.log.Warn("failed to record notification", logger.Error(err))
	}
}
