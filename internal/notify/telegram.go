package notify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"bbdc_booking_monitor/pkg/logger"
)

// reply — ответ человека на опубликованное сообщение
type reply struct {
	text       string
	receivedAt time.Time
}

// TelegramChannel доставляет уведомления в Telegram чат и принимает
// ответы человека на опубликованные капчи. Реализует captcha.HumanChannel.
type TelegramChannel struct {
	bot    *tgbot.Bot
	chatID int64
	log    *logger.Logger

	mu      sync.Mutex
	waiters map[int]chan reply
}

// NewTelegramChannel создает канал для указанного чата
func NewTelegramChannel(token string, chatID int64, log *logger.Logger) (*TelegramChannel, error) {
	ch := &TelegramChannel{
		chatID:  chatID,
		log:     log,
		waiters: make(map[int]chan reply),
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(ch.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	ch.bot = b

	return ch, nil
}

// Run запускает long polling обновлений, блокируется до отмены контекста
func (c *TelegramChannel) Run(ctx context.Context) {
	c.bot.Start(ctx)
}

// SendText отправляет текстовое сообщение без ожидания ответа
func (c *TelegramChannel) SendText(ctx context.Context, text string) error {
	_, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: c.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// PublishChallenge отправляет изображение капчи и возвращает идентификатор
// сообщения: ответом считается только reply на это сообщение
func (c *TelegramChannel) PublishChallenge(ctx context.Context, img image.Image, caption string) (int, time.Time, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to encode captcha image: %w", err)
	}

	msg, err := c.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID: c.chatID,
		Photo: &tgmodels.InputFileUpload{
			Filename: "captcha.png",
			Data:     &buf,
		},
		Caption: caption,
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to publish captcha: %w", err)
	}

	c.log.Info("captcha published to telegram", logger.Int("message_id", msg.ID))
	return msg.ID, time.Now(), nil
}

// AwaitReply блокируется до ответа на сообщение msgID, таймаута либо
// отмены контекста
func (c *TelegramChannel) AwaitReply(ctx context.Context, msgID int, timeout time.Duration) (string, time.Time, error) {
	waiter := make(chan reply, 1)

	c.mu.Lock()
	c.waiters[msgID] = waiter
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, msgID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-waiter:
		return r.text, r.receivedAt, nil
	case <-timer.C:
		return "", time.Time{}, fmt.Errorf("no reply to message %d within %s", msgID, timeout)
	case <-ctx.Done():
		return "", time.Time{}, ctx.Err()
	}
}

// handleUpdate маршрутизирует входящие сообщения: reply на опубликованную
// капчу уходит ожидающему, остальное игнорируется
func (c *TelegramChannel) handleUpdate(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.ReplyToMessage == nil || msg.Chat.ID != c.chatID {
		return
	}

	c.mu.Lock()
	waiter, ok := c.waiters[msg.ReplyToMessage.ID]
	c.mu.Unlock()

	if !ok {
		c.log.Debug("reply to unknown message ignored",
			logger.Int("reply_to", msg.ReplyToMessage.ID))
		return
	}

	select {
	case waiter <- reply{text: msg.Text, receivedAt: time.Now()}:
	default:
		// Буфер занят: первый ответ уже принят
	}
}
