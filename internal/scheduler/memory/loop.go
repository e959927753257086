package memory

import (
	"sync"
	"time"
)

// SingleShotLoop реализует TaskLoop на одном time.Timer. Таймер хранится
// в nullable поле: non-nil пока вызов запланирован, сбрасывается при
// срабатывании до запуска задачи, что исключает дублирующиеся циклы.
type SingleShotLoop struct {
	task func()

	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	stopOnce sync.Once
}

// NewSingleShotLoop создает цикл для задачи task
func NewSingleShotLoop(task func()) *SingleShotLoop {
	return &SingleShotLoop{task: task}
}

// Schedule планирует срабатывание через delay. Уже запланированный вызов
// отменяется: инвариант «не более одного отложенного вызова».
func (l *SingleShotLoop) Schedule(delay time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return false
	}

	if l.timer != nil {
		l.timer.Stop()
	}

	l.timer = time.AfterFunc(delay, func() {
		// Сбрасываем handle до запуска задачи, чтобы задача могла
		// перепланировать себя
		l.mu.Lock()
		l.timer = nil
		stopped := l.stopped
		l.mu.Unlock()

		if stopped {
			return
		}
		l.task()
	})

	return true
}

// Cancel отменяет отложенный вызов
func (l *SingleShotLoop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Pending сообщает, есть ли запланированный вызов
func (l *SingleShotLoop) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timer != nil
}

// Stop останавливает цикл и отменяет отложенный вызов
func (l *SingleShotLoop) Stop() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.stopped = true
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
	})
	return nil
}
