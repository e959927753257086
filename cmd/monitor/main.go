package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bbdc_booking_monitor/internal/bbdc"
	"bbdc_booking_monitor/internal/captcha"
	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/internal/monitor"
	"bbdc_booking_monitor/internal/notify"
	"bbdc_booking_monitor/internal/scheduler/memory"
	"bbdc_booking_monitor/internal/server"
	"bbdc_booking_monitor/internal/session"
	"bbdc_booking_monitor/internal/store"
	"bbdc_booking_monitor/internal/storage/sqlite"
	"bbdc_booking_monitor/pkg/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting BBDC Booking Monitor...")

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализируем логгер
	appLog := logger.New(logger.LevelInfo)
	appLog.Info("Configuration loaded successfully")

	// Инициализируем журнал аудита
	audit, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}
	defer func() {
		if err := audit.Close(); err != nil {
			log.Printf("Error closing audit log: %v", err)
		}
	}()

	appLog.Info("Audit log initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telegram канал опционален: без него остаются только
	// OS-уведомления и автоматическое решение капчи
	var telegram *notify.TelegramChannel
	var textSender notify.TextSender
	var human captcha.HumanChannel
	if cfg.TelegramEnabled() {
		telegram, err = notify.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID, appLog)
		if err != nil {
			log.Fatalf("Failed to create Telegram channel: %v", err)
		}
		go telegram.Run(ctx)
		textSender = telegram
		human = telegram
		appLog.Info("Telegram channel started")
	} else {
		human = unavailableChannel{}
		appLog.Warn("Telegram is not configured, captcha fallback to human is unavailable")
	}

	desktop := notify.NewDesktopChannel(appLog)
	dispatcher := notify.NewDispatcher(textSender, desktop, audit, appLog)

	// Клиент бэкенда и состояние сессии
	client := bbdc.New(cfg.Auth.BaseURL, appLog)
	sessionStore := store.NewMemoryStore()

	// Решатель капчи: сегментация, OCR, ручной фолбэк
	segmenter := captcha.NewSegmenter(cfg.Captcha.TargetWidth)
	var recognizer captcha.Recognizer
	tess, err := captcha.NewTesseractRecognizer()
	if err != nil {
		appLog.Warn("tesseract is unavailable, OCR disabled", logger.Error(err))
	} else {
		recognizer = tess
		defer tess.Close()
	}

	// Цикл инициализации объявляется заранее: reload и onAuthLost
	// замыкаются на него до его создания
	var initLoop *memory.SingleShotLoop
	restartLogin := func() {
		initLoop.Schedule(0)
	}

	solver := captcha.NewSolver(
		segmenter,
		recognizer,
		human,
		restartLogin,
		cfg.Captcha.PreferAutomated && recognizer != nil,
		cfg.Captcha.HumanReplyTimeout,
		cfg.Captcha.StaleReplyAfter,
		appLog,
	)

	sess := session.NewManager(client, sessionStore, solver, cfg.Auth, cfg.Course, func(title, body string) {
		dispatcher.Notify(ctx, title, body)
	}, appLog)

	filter, err := monitor.NewFilter(cfg.Monitor)
	if err != nil {
		log.Fatalf("Failed to build slot filter: %v", err)
	}

	poller := monitor.NewPoller(client, sess, dispatcher, audit, filter,
		cfg.Course, cfg.Monitor, restartLogin, appLog)
	pollLoop := memory.NewSingleShotLoop(func() {
		poller.Tick(ctx)
	})
	poller.SetLoop(pollLoop)

	// Цикл инициализации повторяет вход до успеха, затем запускает опрос
	initLoop = memory.NewSingleShotLoop(func() {
		if err := sess.Initialize(ctx); err != nil {
			appLog.Error("session initialization failed", logger.Error(err))
			initLoop.Schedule(cfg.Auth.InitRetryInterval)
			return
		}
		poller.Start()
	})
	initLoop.Schedule(0)

	// Служебный HTTP сервер: /health и /metrics
	srv := server.New(cfg.Server, sess, poller, audit, appLog)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Обрабатываем системные сигналы
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLog.Info("Shutdown signal received, starting graceful shutdown...")
	cancel()

	initLoop.Stop()
	poller.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	appLog.Info("Monitor stopped gracefully")
}

// unavailableChannel — заглушка канала связи с человеком при
// несконфигурированном Telegram: публикация капчи всегда отказывает
type unavailableChannel struct{}

func (unavailableChannel) PublishChallenge(ctx context.Context, img image.Image, caption string) (int, time.Time, error) {
	return 0, time.Time{}, fmt.Errorf("no human channel configured")
}

func (unavailableChannel) AwaitReply(ctx context.Context, msgID int, timeout time.Duration) (string, time.Time, error) {
	return "", time.Time{}, fmt.Errorf("no human channel configured")
}

func (unavailableChannel) SendText(ctx context.Context, text string) error {
	return nil
}
