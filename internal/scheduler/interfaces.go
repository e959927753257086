package scheduler

import "time"

// TaskLoop планирует отложенные срабатывания одной периодической задачи.
// Инвариант: в любой момент ожидает выполнения не более одного вызова;
// повторное Schedule отменяет предыдущий отложенный вызов.
type TaskLoop interface {
	// Schedule планирует срабатывание через delay,
	// возвращает false если цикл остановлен
	Schedule(delay time.Duration) bool

	// Cancel отменяет отложенный вызов, если он есть
	Cancel()

	// Pending сообщает, запланировано ли срабатывание
	Pending() bool

	// Stop останавливает цикл навсегда
	Stop() error
}
