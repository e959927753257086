package storage

import (
	"context"

	"bbdc_booking_monitor/internal/storage/models"
)

// PollJournal определяет интерфейс для журнала циклов опроса
type PollJournal interface {
	RecordPoll(ctx context.Context, rec *models.PollRecord) error
	RecentPolls(ctx context.Context, limit int) ([]*models.PollRecord, error)
}

// NotificationJournal определяет интерфейс для журнала уведомлений
type NotificationJournal interface {
	RecordNotification(ctx context.Context, rec *models.NotificationRecord) error
	RecentNotifications(ctx context.Context, limit int) ([]*models.NotificationRecord, error)
}

// AuditLog объединяет журналы в единый интерфейс
type AuditLog interface {
	PollJournal
	NotificationJournal
	Close() error
	Ping(ctx context.Context) error
}
