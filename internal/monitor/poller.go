package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bbdc_booking_monitor/internal/bbdc"
	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/internal/scheduler"
	"bbdc_booking_monitor/internal/session"
	"bbdc_booking_monitor/internal/storage"
	"bbdc_booking_monitor/internal/storage/models"
	"bbdc_booking_monitor/pkg/errors"
	"bbdc_booking_monitor/pkg/logger"
	"bbdc_booking_monitor/pkg/metrics"
)

// SlotAPI — операции бэкенда, нужные циклу опроса. Реализуется *bbdc.Client.
type SlotAPI interface {
	ListPracSlotReleased(ctx context.Context, q bbdc.SlotQuery) (*bbdc.SlotListData, error)
	ListPracticalTrainings(ctx context.Context, courseType string) ([]bbdc.Training, error)
	CheckExistsC3PracticalTrainingSlot(ctx context.Context, courseType string) (bool, error)
}

// Gate отсекает опрос, пока сессия не готова. Реализуется *session.Manager.
type Gate interface {
	State() session.State
	EnsureCourseSelected(ctx context.Context) error
}

// Notifier рассылает уведомления, никогда не возвращая ошибку
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// CourseSelection — параметры предмета, определенные один раз за сессию
type CourseSelection struct {
	CourseType     string
	StageSubNo     string
	StageSubDesc   string
	SubVehicleType string
}

// Poller периодически опрашивает выпущенные слоты, ведет историю
// наблюдений и рассылает уведомления о подходящих слотах
type Poller struct {
	api     SlotAPI
	gate    Gate
	notify  Notifier
	journal storage.PollJournal
	filter  *Filter
	history *History
	log     *logger.Logger

	course  config.CourseConfig
	monitor config.MonitorConfig

	// Перехватываются в тестах
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	loop scheduler.TaskLoop
	// Вызывается при потере авторизации, запускает цикл повторного входа
	onAuthLost func()

	mu       sync.Mutex
	selected *CourseSelection
	lastPoll time.Time
}

// NewPoller создает поллер. Планирование запускается отдельно через Start.
func NewPoller(
	api SlotAPI,
	gate Gate,
	notify Notifier,
	journal storage.PollJournal,
	filter *Filter,
	course config.CourseConfig,
	monitor config.MonitorConfig,
	onAuthLost func(),
	log *logger.Logger,
) *Poller {
	p := &Poller{
		api:        api,
		gate:       gate,
		notify:     notify,
		journal:    journal,
		filter:     filter,
		history:    NewHistory(),
		log:        log,
		course:     course,
		monitor:    monitor,
		onAuthLost: onAuthLost,
		sleep:      sleepCtx,
		now:        time.Now,
	}
	return p
}

// SetLoop привязывает цикл планирования. Должен быть вызван до Start.
func (p *Poller) SetLoop(loop scheduler.TaskLoop) {
	p.loop = loop
}

// History возвращает историю наблюдений поллера
func (p *Poller) History() *History {
	return p.history
}

// LastPoll возвращает время последнего выполненного цикла
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

// Start планирует первый цикл опроса без начальной задержки
func (p *Poller) Start() {
	p.loop.Schedule(0)
}

// Stop останавливает планирование
func (p *Poller) Stop() {
	if p.loop != nil {
		p.loop.Stop()
	}
}

// Tick выполняет один цикл опроса и перепланирует следующий. Служит
// задачей SingleShotLoop; при потере авторизации перепланирования нет —
// возобновление происходит после успешного повторного входа.
func (p *Poller) Tick(ctx context.Context) {
	reschedule := p.runOnce(ctx)
	if reschedule && ctx.Err() == nil {
		p.loop.Schedule(p.nextInterval())
	}
}

// nextInterval возвращает случайную задержку из [IntervalMin, IntervalMax]
func (p *Poller) nextInterval() time.Duration {
	span := p.monitor.IntervalMax - p.monitor.IntervalMin
	if span <= 0 {
		return p.monitor.IntervalMin
	}
	return p.monitor.IntervalMin + time.Duration(rand.Int63n(int64(span)+1))
}

// runOnce выполняет один цикл. Возвращает false, если перепланирование
// не требуется (потеря авторизации или остановка).
func (p *Poller) runOnce(ctx context.Context) bool {
	if p.gate.State() != session.LoggedIn {
		p.log.Debug("poll skipped, session is not logged in")
		return true
	}

	// Debounce: два среза расписания чаще MinPollSpacing не несут новой
	// информации, а частые запросы заметны хосту
	p.mu.Lock()
	last := p.lastPoll
	p.mu.Unlock()
	sinceLast := p.now().Sub(last)
	if !last.IsZero() && sinceLast < p.monitor.MinPollSpacing {
		p.log.Debug("poll debounced", logger.Duration("since_last", sinceLast))
		p.record(ctx, models.OutcomeDebounced, 0, 0, "")
		return true
	}

	started := p.now()
	observed, newly, err := p.poll(ctx)
	metrics.PollDuration.Observe(p.now().Sub(started).Seconds())

	p.mu.Lock()
	p.lastPoll = p.now()
	p.mu.Unlock()

	switch {
	case err == nil:
		metrics.PollCyclesTotal.WithLabelValues(models.OutcomeOK).Inc()
		p.record(ctx, models.OutcomeOK, observed, newly, "")
		return true

	case errors.Is(err, errors.ErrNoAccessToken) || errors.Is(err, errors.ErrNotLoggedIn):
		metrics.PollCyclesTotal.WithLabelValues(models.OutcomeAuthLost).Inc()
		p.record(ctx, models.OutcomeAuthLost, observed, newly, err.Error())
		p.log.Warn("session lost during poll", logger.Error(err))
		p.notify.Notify(ctx, "Logged out", "Session expired, re-login started")
		if p.onAuthLost != nil {
			p.onAuthLost()
		}
		return false

	default:
		metrics.PollCyclesTotal.WithLabelValues(models.OutcomeError).Inc()
		p.record(ctx, models.OutcomeError, observed, newly, err.Error())
		p.log.Error("poll cycle failed", logger.Error(err))
		p.notify.Notify(ctx, "⚠️ Booking Monitor Error", err.Error())
		return true
	}
}

// poll выполняет сами запросы: определение предмета, выборка слотов по
// всем объявленным месяцам, обновление истории, фильтрация, уведомление
func (p *Poller) poll(ctx context.Context) (observed, newly int, err error) {
	if err := p.gate.EnsureCourseSelected(ctx); err != nil {
		return 0, 0, err
	}

	sel, err := p.resolveSubject(ctx)
	if err != nil {
		return 0, 0, err
	}

	data, err := p.api.ListPracSlotReleased(ctx, bbdc.SlotQuery{
		CourseType:     sel.CourseType,
		StageSubNo:     sel.StageSubNo,
		StageSubDesc:   sel.StageSubDesc,
		SubVehicleType: sel.SubVehicleType,
	})
	if err != nil {
		return 0, 0, err
	}

	merged := data.ReleasedSlotListGroupByDay

	// Выдача по умолчанию покрывает один месяц. Если объявлено несколько,
	// дозапрашиваем последний месяц и накладываем поверх: при пересечении
	// дат побеждает поздний ответ.
	if len(data.ReleasedSlotMonthList) > 1 {
		if err := p.sleep(ctx, p.monitor.MonthQuerySpacing); err != nil {
			return 0, 0, err
		}

		months := append([]string{}, data.ReleasedSlotMonthList...)
		sort.Strings(months)
		lastMonth := months[len(months)-1]

		extra, err := p.api.ListPracSlotReleased(ctx, bbdc.SlotQuery{
			CourseType:        sel.CourseType,
			StageSubNo:        sel.StageSubNo,
			StageSubDesc:      sel.StageSubDesc,
			SubVehicleType:    sel.SubVehicleType,
			ReleasedSlotMonth: lastMonth,
		})
		if err != nil {
			return 0, 0, err
		}

		if merged == nil {
			merged = make(map[string][]bbdc.ReleasedSlot)
		}
		for date, slots := range extra.ReleasedSlotListGroupByDay {
			merged[date] = slots
		}
	}

	for date, slots := range merged {
		o, n := p.history.Observe(date, slots)
		observed += o
		newly += n
	}
	metrics.SlotsObserved.Add(float64(observed))
	metrics.SlotsNewlyAvailable.Add(float64(newly))

	lines := p.filter.Select(p.history.Snapshot())
	if len(lines) > 0 {
		title := fmt.Sprintf("🎯 %d slots available", len(lines))
		p.notify.Notify(ctx, title, strings.Join(lines, "\n"))
	} else {
		p.log.Info("poll complete, no matching slots",
			logger.Int("observed", observed),
			logger.Int("newly_available", newly))
	}

	if p.course.SecondaryCourseType != "" {
		exists, err := p.api.CheckExistsC3PracticalTrainingSlot(ctx, p.course.SecondaryCourseType)
		if err != nil {
			// Дополнительная проверка не должна ронять основной цикл
			p.log.Warn("secondary course check failed", logger.Error(err))
		} else if exists {
			p.notify.Notify(ctx, "🎯 Secondary course slot",
				fmt.Sprintf("Training slots exist for course type %s", p.course.SecondaryCourseType))
		}
	}

	return observed, newly, nil
}

// resolveSubject определяет параметры предмета для запросов доступности.
// Явная конфигурация имеет приоритет; иначе предмет выводится из истории
// обучения: берется запись с наибольшим subStageSubNo среди доступных
// для бронирования. Решение кэшируется до конца жизни процесса.
func (p *Poller) resolveSubject(ctx context.Context) (*CourseSelection, error) {
	p.mu.Lock()
	if p.selected != nil {
		sel := p.selected
		p.mu.Unlock()
		return sel, nil
	}
	p.mu.Unlock()

	if p.course.StageSubNo != "" {
		sel := &CourseSelection{
			CourseType:     p.course.CourseType,
			StageSubNo:     p.course.StageSubNo,
			StageSubDesc:   p.course.StageSubDesc,
			SubVehicleType: p.course.SubVehicleType,
		}
		p.mu.Lock()
		p.selected = sel
		p.mu.Unlock()
		return sel, nil
	}

	trainings, err := p.api.ListPracticalTrainings(ctx, p.course.CourseType)
	if err != nil {
		return nil, err
	}

	var best *bbdc.Training
	for i := range trainings {
		t := &trainings[i]
		if !t.CanDoBooking {
			continue
		}
		if best == nil || t.SubStageSubNo > best.SubStageSubNo {
			best = t
		}
	}
	if best == nil {
		return nil, errors.ErrNoEligibleCourse
	}

	sel := &CourseSelection{
		CourseType:     p.course.CourseType,
		StageSubNo:     best.SubStageSubNo,
		StageSubDesc:   best.SubDesc,
		SubVehicleType: best.SubVehicleType,
	}
	p.mu.Lock()
	p.selected = sel
	p.mu.Unlock()

	p.log.Info("practical subject resolved",
		logger.String("stageSubNo", sel.StageSubNo),
		logger.String("subDesc", sel.StageSubDesc))
	return sel, nil
}

// record пишет запись цикла в журнал аудита, ошибки только логируются
func (p *Poller) record(ctx context.Context, outcome string, seen, newSlots int, errMsg string) {
	if p.journal == nil {
		return
	}
	rec := &models.PollRecord{
		ID:           uuid.New().String(),
		StartedAt:    p.now(),
		Outcome:      outcome,
		SlotsSeen:    seen,
		SlotsNew:     newSlots,
		ErrorMessage: errMsg,
	}
	if err := p.journal.RecordPoll(ctx, rec); err != nil {
		p.log.Warn("failed to record poll cycle", logger.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
