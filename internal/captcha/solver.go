package captcha

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"bbdc_booking_monitor/pkg/errors"
	"bbdc_booking_monitor/pkg/logger"
	"bbdc_booking_monitor/pkg/metrics"
)

// Длина корректного ответа капчи BBDC
const expectedCaptchaLength = 5

// Challenge представляет одну выданную бэкендом капчу. Экземпляр
// одноразовый: токен нельзя переиспользовать для второй попытки входа.
type Challenge struct {
	RawImage       image.Image
	Token          string
	VerifyCodeID   string
	SegmentedImage image.Image
	RecognizedText string
	ResolvedText   string
}

// HumanChannel — канал связи с человеком для ручного решения капчи
type HumanChannel interface {
	// PublishChallenge отправляет изображение и возвращает идентификатор
	// сообщения, на которое ожидается ответ
	PublishChallenge(ctx context.Context, img image.Image, caption string) (msgID int, publishedAt time.Time, err error)

	// AwaitReply блокируется до ответа на сообщение msgID либо таймаута
	AwaitReply(ctx context.Context, msgID int, timeout time.Duration) (text string, receivedAt time.Time, err error)

	// SendText отправляет информационное сообщение без ожидания ответа
	SendText(ctx context.Context, text string) error
}

// Solver оркестрирует автоматическое распознавание и ручной фолбэк
type Solver struct {
	segmenter  *Segmenter
	recognizer Recognizer
	human      HumanChannel
	reload     func()
	log        *logger.Logger

	replyTimeout time.Duration
	staleAfter   time.Duration

	mu sync.Mutex
	// preferAutomated сбрасывается после отклонения капчи бэкендом и
	// возвращается к настроенному значению после успешного входа
	preferAutomated bool
	configuredPref  bool
}

// NewSolver создает решатель капчи. reload вызывается при устаревшем
// ответе человека для принудительной перезагрузки сессии, может быть nil.
func NewSolver(
	segmenter *Segmenter,
	recognizer Recognizer,
	human HumanChannel,
	reload func(),
	preferAutomated bool,
	replyTimeout time.Duration,
	staleAfter time.Duration,
	log *logger.Logger,
) *Solver {
	return &Solver{
		segmenter:       segmenter,
		recognizer:      recognizer,
		human:           human,
		reload:          reload,
		log:             log,
		replyTimeout:    replyTimeout,
		staleAfter:      staleAfter,
		preferAutomated: preferAutomated,
		configuredPref:  preferAutomated,
	}
}

// PreferAutomated сообщает, будет ли следующая попытка автоматической
func (s *Solver) PreferAutomated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferAutomated
}

// Solve решает капчу: всегда прогоняет OCR по сегментированному
// изображению, затем либо принимает кандидата, либо ждет ответа человека
func (s *Solver) Solve(ctx context.Context, ch *Challenge) (string, error) {
	ch.SegmentedImage = s.segmenter.Segment(ch.RawImage)

	if s.recognizer != nil {
		text, err := s.recognizer.Recognize(ScaleToHeight(ch.SegmentedImage, 64))
		if err != nil {
			s.log.Warn("OCR failed, falling back to human", logger.Error(err))
		} else {
			ch.RecognizedText = text
		}
	}

	if s.PreferAutomated() && isCandidate(ch.RecognizedText) {
		metrics.CaptchaSolves.WithLabelValues("ocr", "accepted").Inc()
		// Информируем канал без ожидания ответа
		if err := s.human.SendText(ctx, fmt.Sprintf("OCR candidate accepted: %s", ch.RecognizedText)); err != nil {
			s.log.Warn("failed to notify channel about OCR candidate", logger.Error(err))
		}
		ch.ResolvedText = ch.RecognizedText
		return ch.ResolvedText, nil
	}

	caption := "Captcha needs a reply with the code"
	if ch.RecognizedText != "" {
		caption = fmt.Sprintf("Captcha needs a reply with the code (OCR guess: %s)", ch.RecognizedText)
	}

	msgID, publishedAt, err := s.human.PublishChallenge(ctx, ch.SegmentedImage, caption)
	if err != nil {
		metrics.CaptchaSolves.WithLabelValues("human", "publish_failed").Inc()
		return "", errors.ErrTransientHTTP.WithError(err)
	}

	text, receivedAt, err := s.human.AwaitReply(ctx, msgID, s.replyTimeout)
	if err != nil {
		metrics.CaptchaSolves.WithLabelValues("human", "timeout").Inc()
		return "", errors.ErrHumanTimeout.WithError(err)
	}

	// Ответ на давно опубликованную капчу почти наверняка относится к уже
	// невалидному challenge: токен одноразовый, страница могла смениться
	if receivedAt.Sub(publishedAt) > s.staleAfter {
		metrics.CaptchaSolves.WithLabelValues("human", "stale").Inc()
		if err := s.human.SendText(ctx, "Reply arrived too late, forcing session reload"); err != nil {
			s.log.Warn("failed to report stale reply", logger.Error(err))
		}
		if s.reload != nil {
			s.reload()
		}
		return "", errors.ErrStaleReply
	}

	metrics.CaptchaSolves.WithLabelValues("human", "accepted").Inc()
	ch.ResolvedText = text
	return ch.ResolvedText, nil
}

// ReportRejected фиксирует отклонение решенной капчи бэкендом: следующая
// попытка пойдет через человека
func (s *Solver) ReportRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferAutomated = false
	metrics.CaptchaSolves.WithLabelValues("ocr", "rejected").Inc()
}

// ReportLoginSuccess возвращает предпочтение автоматического решения
// к настроенному значению
func (s *Solver) ReportLoginSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferAutomated = s.configuredPref
}

// isCandidate проверяет, похож ли результат OCR на корректный ответ:
// ровно 5 алфавитно-цифровых символов
func isCandidate(text string) bool {
	if len(text) != expectedCaptchaLength {
		return false
	}
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
