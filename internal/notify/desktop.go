package notify

import (
	"github.com/gen2brain/beeep"

	"bbdc_booking_monitor/pkg/logger"
)

// DesktopChannel показывает OS-уведомления на машине, где запущен монитор
type DesktopChannel struct {
	log *logger.Logger
}

// NewDesktopChannel создает канал системных уведомлений
func NewDesktopChannel(log *logger.Logger) *DesktopChannel {
	return &DesktopChannel{log: log}
}

// Notify показывает уведомление; при отказе пробует alert-диалог
func (d *DesktopChannel) Notify(title, body string) error {
	if err := beeep.Notify(title, body, ""); err != nil {
		d.log.Debug("desktop notification failed, falling back to alert", logger.Error(err))
		return beeep.Alert(title, body, "")
	}
	return nil
}
