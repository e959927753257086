package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/pkg/errors"
)

const dateLayout = "2006-01-02"

// Filter отбирает слоты по настроенному окну дат и правилам сессий
type Filter struct {
	From              time.Time
	To                time.Time
	MinSession        int
	MinWeekdaySession int
	OnlyNew           bool
}

// NewFilter строит фильтр из конфигурации мониторинга
func NewFilter(cfg config.MonitorConfig) (*Filter, error) {
	from, err := time.Parse(dateLayout, cfg.DateFrom)
	if err != nil {
		return nil, errors.ErrConfigurationInvalid.WithError(err).WithContext("invalid DATE_FROM")
	}
	to, err := time.Parse(dateLayout, cfg.DateTo)
	if err != nil {
		return nil, errors.ErrConfigurationInvalid.WithError(err).WithContext("invalid DATE_TO")
	}
	return &Filter{
		From:              from,
		To:                to,
		MinSession:        cfg.MinSession,
		MinWeekdaySession: cfg.MinWeekdaySession,
		OnlyNew:           cfg.OnlyShowNew,
	}, nil
}

// Select возвращает отформатированные строки для всех слотов снимка,
// прошедших фильтр: даты по возрастанию, внутри даты сессии по возрастанию
func (f *Filter) Select(snapshot map[string]map[int]Slot) []string {
	dates := make([]string, 0, len(snapshot))
	for date := range snapshot {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var lines []string
	for _, date := range dates {
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			continue
		}
		if t.Before(f.From) || t.After(f.To) {
			continue
		}

		day := snapshot[date]
		for idx := MinSessionIndex; idx <= MaxSessionIndex; idx++ {
			slot, ok := day[idx]
			if !ok || !slot.Available {
				continue
			}
			if !f.qualifies(t, idx) {
				continue
			}
			if f.OnlyNew && !slot.IsNewlyAvailable {
				continue
			}
			lines = append(lines, FormatSlot(t, slot))
		}
	}
	return lines
}

// qualifies проверяет правила минимальной сессии: в выходные достаточно
// общего порога, в будни действует отдельный (обычно более строгий)
func (f *Filter) qualifies(t time.Time, sessionIndex int) bool {
	if sessionIndex < f.MinSession {
		return false
	}
	if isWeekend(t) {
		return true
	}
	return sessionIndex >= f.MinWeekdaySession
}

// IsPeak сообщает, тарифицируется ли слот как пиковый:
// любой слот выходного дня либо сессия после 5-й в будни
func IsPeak(t time.Time, sessionIndex int) bool {
	return isWeekend(t) || sessionIndex > 5
}

// FormatSlot возвращает строку вида "2025-07-20 SUN 08:00–09:40 (Peak)"
func FormatSlot(t time.Time, slot Slot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s–%s",
		t.Format(dateLayout),
		strings.ToUpper(t.Format("Mon")),
		slot.StartTime, slot.EndTime)
	if IsPeak(t, slot.SessionIndex) {
		b.WriteString(" (Peak)")
	}
	return b.String()
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
