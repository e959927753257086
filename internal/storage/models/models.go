package models

import "time"

// PollRecord — запись журнала аудита об одном цикле опроса
type PollRecord struct {
	ID           string    `json:"id" db:"id"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	Outcome      string    `json:"outcome" db:"outcome"`
	SlotsSeen    int       `json:"slots_seen" db:"slots_seen"`
	SlotsNew     int       `json:"slots_new" db:"slots_new"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
}

// Результаты цикла опроса
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeAuthLost  = "auth_lost"
	OutcomeDebounced = "debounced"
)

// NotificationRecord — запись журнала аудита об отправленном уведомлении
type NotificationRecord struct {
	ID       string    `json:"id" db:"id"`
	SentAt   time.Time `json:"sent_at" db:"sent_at"`
	Title    string    `json:"title" db:"title"`
	Body     string    `json:"body" db:"body"`
	Channels string    `json:"channels" db:"channels"`
}
