package monitor

import (
	"strings"
	"sync"

	"bbdc_booking_monitor/internal/bbdc"
)

// Фиксированное дневное расписание: сессии 1..8
const (
	MinSessionIndex = 1
	MaxSessionIndex = 8
)

// Slot представляет один бронируемый учебный слот
type Slot struct {
	Date         string // YYYY-MM-DD
	SessionIndex int
	StartTime    string
	EndTime      string
	Available    bool
	// IsNewlyAvailable истинно только если слот доступен сейчас, а в
	// непосредственно предыдущем наблюдении был недоступен или не встречался
	IsNewlyAvailable bool
}

// History хранит последнее известное состояние каждого наблюдавшегося
// слота за время жизни процесса. Индекс сессии, отсутствующий в свежем
// ответе, не затирается: история отражает объединение всех наблюдений.
type History struct {
	mu   sync.Mutex
	days map[string]map[int]Slot
}

// NewHistory создает пустую историю наблюдений
func NewHistory() *History {
	return &History{
		days: make(map[string]map[int]Slot),
	}
}

// Observe записывает результаты опроса для одной даты и возвращает число
// наблюдавшихся и впервые освободившихся слотов
func (h *History) Observe(dateKey string, slots []bbdc.ReleasedSlot) (observed, newlyAvailable int) {
	date := NormalizeDateKey(dateKey)

	h.mu.Lock()
	defer h.mu.Unlock()

	day := h.days[date]
	if day == nil {
		day = make(map[int]Slot)
		h.days[date] = day
	}

	for sessionNo := MinSessionIndex; sessionNo <= MaxSessionIndex; sessionNo++ {
		var found *bbdc.ReleasedSlot
		for i := range slots {
			if slots[i].SessionNo == sessionNo {
				found = &slots[i]
				break
			}
		}
		if found == nil {
			continue
		}

		observed++
		available := found.Available()
		prior, seen := day[sessionNo]
		isNew := available && (!seen || !prior.Available)
		if isNew {
			newlyAvailable++
		}

		day[sessionNo] = Slot{
			Date:             date,
			SessionIndex:     sessionNo,
			StartTime:        found.StartTime,
			EndTime:          found.EndTime,
			Available:        available,
			IsNewlyAvailable: isNew,
		}
	}

	return observed, newlyAvailable
}

// Snapshot возвращает глубокую копию истории
func (h *History) Snapshot() map[string]map[int]Slot {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]map[int]Slot, len(h.days))
	for date, day := range h.days {
		cp := make(map[int]Slot, len(day))
		for k, v := range day {
			cp[k] = v
		}
		out[date] = cp
	}
	return out
}

// NormalizeDateKey приводит ключ даты бэкенда к YYYY-MM-DD:
// ответы приходят с ключами вида "2025-07-20 00:00:00"
func NormalizeDateKey(key string) string {
	if idx := strings.IndexByte(key, ' '); idx >= 0 {
		return key[:idx]
	}
	return key
}
