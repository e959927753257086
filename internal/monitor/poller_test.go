package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"bbdc_booking_monitor/internal/bbdc"
	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/internal/session"
	"bbdc_booking_monitor/pkg/errors"
	"bbdc_booking_monitor/pkg/logger"
)

type fakeSlotAPI struct {
	mu        sync.Mutex
	responses []*bbdc.SlotListData
	queries   []bbdc.SlotQuery
	err       error
	trainings []bbdc.Training
	c3Exists  bool
}

func (f *fakeSlotAPI) ListPracSlotReleased(ctx context.Context, q bbdc.SlotQuery) (*bbdc.SlotListData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &bbdc.SlotListData{}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeSlotAPI) ListPracticalTrainings(ctx context.Context, courseType string) ([]bbdc.Training, error) {
	return f.trainings, nil
}

func (f *fakeSlotAPI) CheckExistsC3PracticalTrainingSlot(ctx context.Context, courseType string) (bool, error) {
	return f.c3Exists, nil
}

type fakeGate struct {
	state session.State
}

func (g *fakeGate) State() session.State { return g.state }

func (g *fakeGate) EnsureCourseSelected(ctx context.Context) error { return nil }

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (n *fakeNotifier) Notify(ctx context.Context, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
}

func testPoller(t *testing.T, api *fakeSlotAPI, notifier *fakeNotifier, onAuthLost func()) *Poller {
	t.Helper()

	filter := testFilter(t, config.MonitorConfig{
		DateFrom:          "2026-09-01",
		DateTo:            "2026-12-31",
		MinSession:        1,
		MinWeekdaySession: 1,
	})

	p := NewPoller(
		api,
		&fakeGate{state: session.LoggedIn},
		notifier,
		nil,
		filter,
		config.CourseConfig{CourseType: "2B", StageSubNo: "2B.1"},
		config.MonitorConfig{
			IntervalMin:       3 * time.Minute,
			IntervalMax:       5 * time.Minute,
			MinPollSpacing:    time.Minute,
			MonthQuerySpacing: time.Second,
		},
		onAuthLost,
		logger.New(logger.LevelError),
	)
	// Сон и время управляются тестом
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestPoller_NotifiesAboutMatchingSlots(t *testing.T) {
	api := &fakeSlotAPI{
		responses: []*bbdc.SlotListData{{
			ReleasedSlotListGroupByDay: map[string][]bbdc.ReleasedSlot{
				"2026-09-05 00:00:00": {slot(2, bbdc.BookingProgressAvailable)},
			},
			ReleasedSlotMonthList: []string{"202609"},
		}},
	}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)

	if !p.runOnce(context.Background()) {
		t.Fatal("Expected runOnce to request rescheduling")
	}

	if len(notifier.titles) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.titles))
	}
	if !strings.Contains(notifier.titles[0], "1 slots available") {
		t.Errorf("Unexpected notification title: %q", notifier.titles[0])
	}
	if !strings.Contains(notifier.bodies[0], "2026-09-05") {
		t.Errorf("Expected slot date in body, got %q", notifier.bodies[0])
	}
}

func TestPoller_MergesSecondMonthLaterWins(t *testing.T) {
	first := &bbdc.SlotListData{
		ReleasedSlotListGroupByDay: map[string][]bbdc.ReleasedSlot{
			"2026-09-05": {slot(2, "Booked")},
			"2026-09-12": {slot(3, bbdc.BookingProgressAvailable)},
		},
		ReleasedSlotMonthList: []string{"202609", "202610"},
	}
	second := &bbdc.SlotListData{
		ReleasedSlotListGroupByDay: map[string][]bbdc.ReleasedSlot{
			// Пересечение дат: поздний ответ замещает ранний
			"2026-09-05": {slot(2, bbdc.BookingProgressAvailable)},
			"2026-10-03": {slot(4, bbdc.BookingProgressAvailable)},
		},
		ReleasedSlotMonthList: []string{"202610"},
	}
	api := &fakeSlotAPI{responses: []*bbdc.SlotListData{first, second}}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)

	p.runOnce(context.Background())

	if len(api.queries) != 2 {
		t.Fatalf("Expected 2 slot queries, got %d", len(api.queries))
	}
	if api.queries[1].ReleasedSlotMonth != "202610" {
		t.Errorf("Expected second query for month 202610, got %q", api.queries[1].ReleasedSlotMonth)
	}

	snap := p.History().Snapshot()
	if s := snap["2026-09-05"][2]; !s.Available {
		t.Errorf("Expected later response to win for overlapping date, got %+v", s)
	}
	if _, ok := snap["2026-10-03"]; !ok {
		t.Errorf("Expected second month dates to be merged in, got %v", snap)
	}
}

func TestPoller_AuthLossStopsReschedulingAndNotifies(t *testing.T) {
	api := &fakeSlotAPI{err: errors.ErrNoAccessToken}
	notifier := &fakeNotifier{}
	authLost := false
	p := testPoller(t, api, notifier, func() { authLost = true })

	if p.runOnce(context.Background()) {
		t.Error("Expected no rescheduling after auth loss")
	}
	if !authLost {
		t.Error("Expected onAuthLost to be invoked")
	}
	if len(notifier.titles) != 1 || notifier.titles[0] != "Logged out" {
		t.Errorf("Expected Logged out notification, got %v", notifier.titles)
	}
}

func TestPoller_TransientErrorKeepsRescheduling(t *testing.T) {
	api := &fakeSlotAPI{err: errors.ErrTransientHTTP}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)

	if !p.runOnce(context.Background()) {
		t.Error("Expected rescheduling after a transient error")
	}
	if len(notifier.titles) != 1 || !strings.Contains(notifier.titles[0], "Error") {
		t.Errorf("Expected error notification, got %v", notifier.titles)
	}
}

func TestPoller_DebouncesFrequentPolls(t *testing.T) {
	api := &fakeSlotAPI{}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.runOnce(context.Background())
	queriesAfterFirst := len(api.queries)

	// Второй цикл спустя 10 секунд отсекается debounce'ом
	now = now.Add(10 * time.Second)
	p.runOnce(context.Background())
	if len(api.queries) != queriesAfterFirst {
		t.Errorf("Expected debounced cycle to skip backend queries, got %d extra", len(api.queries)-queriesAfterFirst)
	}

	// Спустя MinPollSpacing опрос возобновляется
	now = now.Add(2 * time.Minute)
	p.runOnce(context.Background())
	if len(api.queries) <= queriesAfterFirst {
		t.Error("Expected polling to resume after the spacing interval")
	}
}

func TestPoller_SkipsWhenLoggedOut(t *testing.T) {
	api := &fakeSlotAPI{}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)
	p.gate = &fakeGate{state: session.LoggedOut}

	if !p.runOnce(context.Background()) {
		t.Error("Expected rescheduling while waiting for login")
	}
	if len(api.queries) != 0 {
		t.Errorf("Expected no backend queries while logged out, got %d", len(api.queries))
	}
}

func TestPoller_ResolvesSubjectFromTrainings(t *testing.T) {
	api := &fakeSlotAPI{
		trainings: []bbdc.Training{
			{SubStageSubNo: "2B.1", SubDesc: "Circuit", SubVehicleType: "MC", CanDoBooking: true},
			{SubStageSubNo: "2B.3", SubDesc: "Road", SubVehicleType: "MC", CanDoBooking: true},
			{SubStageSubNo: "2B.9", SubDesc: "Closed", SubVehicleType: "MC", CanDoBooking: false},
		},
	}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)
	// Без явной конфигурации предмет выводится из истории обучения
	p.course = config.CourseConfig{CourseType: "2B"}

	p.runOnce(context.Background())

	if len(api.queries) == 0 {
		t.Fatal("Expected a slot query")
	}
	if got := api.queries[0].StageSubNo; got != "2B.3" {
		t.Errorf("Expected highest bookable subject 2B.3, got %q", got)
	}
}

func TestPoller_SecondaryCourseNotification(t *testing.T) {
	api := &fakeSlotAPI{c3Exists: true}
	notifier := &fakeNotifier{}
	p := testPoller(t, api, notifier, nil)
	p.course.SecondaryCourseType = "3A"

	p.runOnce(context.Background())

	found := false
	for _, title := range notifier.titles {
		if strings.Contains(title, "Secondary course") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected secondary course notification, got %v", notifier.titles)
	}
}
