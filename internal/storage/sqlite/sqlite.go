package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bbdc_booking_monitor/internal/storage/models"

	_ "modernc.org/sqlite"
)

// SQLiteAuditLog реализует интерфейс storage.AuditLog для SQLite
type SQLiteAuditLog struct {
	db *sql.DB
}

// New создает новое подключение к SQLite базе журнала аудита
func New(dbPath string) (*SQLiteAuditLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite поддерживает только одно write-подключение
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	log := &SQLiteAuditLog{db: db}

	if err := log.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return log, nil
}

// migrate выполняет миграции базы данных
func (s *SQLiteAuditLog) migrate() error {
	// WAL mode для лучшей конкурентности
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS poll_cycles (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			outcome TEXT NOT NULL,
			slots_seen INTEGER NOT NULL DEFAULT 0,
			slots_new INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			sent_at DATETIME NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			channels TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_poll_cycles_started_at ON poll_cycles(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_sent_at ON notifications(sent_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Close закрывает подключение к базе данных
func (s *SQLiteAuditLog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping проверяет подключение к базе данных
func (s *SQLiteAuditLog) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordPoll сохраняет запись о цикле опроса
func (s *SQLiteAuditLog) RecordPoll(ctx context.Context, rec *models.PollRecord) error {
	query := `INSERT INTO poll_cycles (id, started_at, outcome, slots_seen, slots_new, error_message)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.StartedAt.UTC(), rec.Outcome, rec.SlotsSeen, rec.SlotsNew, rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to record poll cycle: %w", err)
	}

	return nil
}

// RecentPolls возвращает последние записи о циклах опроса
func (s *SQLiteAuditLog) RecentPolls(ctx context.Context, limit int) ([]*models.PollRecord, error) {
	query := `SELECT id, started_at, outcome, slots_seen, slots_new, error_message
			  FROM poll_cycles ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll cycles: %w", err)
	}
	defer rows.Close()

	var records []*models.PollRecord
	for rows.Next() {
		rec := &models.PollRecord{}
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.Outcome,
			&rec.SlotsSeen, &rec.SlotsNew, &rec.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan poll cycle: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// RecordNotification сохраняет запись об отправленном уведомлении
func (s *SQLiteAuditLog) RecordNotification(ctx context.Context, rec *models.NotificationRecord) error {
	query := `INSERT INTO notifications (id, sent_at, title, body, channels)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.SentAt.UTC(), rec.Title, rec.Body, rec.Channels)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	return nil
}

// RecentNotifications возвращает последние отправленные уведомления
func (s *SQLiteAuditLog) RecentNotifications(ctx context.Context, limit int) ([]*models.NotificationRecord, error) {
	query := `SELECT id, sent_at, title, body, channels
			  FROM notifications ORDER BY sent_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []*models.NotificationRecord
	for rows.Next() {
		rec := &models.NotificationRecord{}
		if err := rows.Scan(&rec.ID, &rec.SentAt, &rec.Title, &rec.Body, &rec.Channels); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
