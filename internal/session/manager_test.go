package session

import (
	"context"
	"testing"

	"bbdc_booking_monitor/internal/bbdc"
	"bbdc_booking_monitor/internal/captcha"
	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/internal/store"
	"bbdc_booking_monitor/pkg/errors"
	"bbdc_booking_monitor/pkg/logger"
)

// 1x1 PNG для фиктивной капчи
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

type fakeBackend struct {
	loginErr    error
	credsErr    error
	authToken   string
	jsessionID  string
	loginCalls  int
	lastCaptcha string
}

func (f *fakeBackend) CheckIDAndPass(ctx context.Context, username, password string) error {
	return f.credsErr
}

func (f *fakeBackend) GetLoginCaptchaImage(ctx context.Context) (*bbdc.CaptchaPayload, error) {
	return &bbdc.CaptchaPayload{
		Image:        onePixelPNG,
		CaptchaToken: "tok-1",
		VerifyCodeID: "vc-1",
	}, nil
}

func (f *fakeBackend) Login(ctx context.Context, username, password, captchaToken, verifyCodeID, verifyCodeValue string) (*bbdc.LoginData, error) {
	f.loginCalls++
	f.lastCaptcha = verifyCodeValue
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &bbdc.LoginData{Username: username, TokenContent: "token-content"}, nil
}

func (f *fakeBackend) SetAuthToken(token string) { f.authToken = token }

func (f *fakeBackend) AuthToken() string { return f.authToken }

func (f *fakeBackend) SetJSessionID(id string) { f.jsessionID = id }

type fakeSolver struct {
	code         string
	err          error
	rejected     int
	loginSuccess int
}

func (f *fakeSolver) Solve(ctx context.Context, ch *captcha.Challenge) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	ch.ResolvedText = f.code
	return f.code, nil
}

func (f *fakeSolver) ReportRejected() { f.rejected++ }

func (f *fakeSolver) ReportLoginSuccess() { f.loginSuccess++ }

func newTestManager(backend *fakeBackend, solver *fakeSolver, course config.CourseConfig) (*Manager, *store.MemoryStore) {
	st := store.NewMemoryStore()
	m := NewManager(
		backend,
		st,
		solver,
		config.AuthConfig{Username: "user1", Password: "pass1"},
		course,
		nil,
		logger.New(logger.LevelError),
	)
	return m, st
}

func TestInitialize_SuccessfulLogin(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B", StageSubNo: "2B.1"})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if m.State() != LoggedIn {
		t.Errorf("Expected LoggedIn state, got %s", m.State())
	}
	if st.GetField(store.FieldUserName) != "user1" {
		t.Errorf("Expected username committed, got %q", st.GetField(store.FieldUserName))
	}
	if st.GetField(store.FieldAuthToken) != "token-content" {
		t.Errorf("Expected auth token committed, got %q", st.GetField(store.FieldAuthToken))
	}
	if backend.authToken != "token-content" || backend.jsessionID != "token-content" {
		t.Error("Expected token to be pushed to backend client")
	}
	if backend.lastCaptcha != "a3X9k" {
		t.Errorf("Expected solved captcha in login call, got %q", backend.lastCaptcha)
	}
	if solver.loginSuccess != 1 {
		t.Errorf("Expected solver to be told about success, got %d", solver.loginSuccess)
	}
}

func TestInitialize_MissingCredentials(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(&fakeBackend{}, st, &fakeSolver{}, config.AuthConfig{}, config.CourseConfig{}, nil, logger.New(logger.LevelError))

	if err := m.Initialize(context.Background()); !errors.Is(err, errors.ErrCredentialsMissing) {
		t.Errorf("Expected ErrCredentialsMissing, got %v", err)
	}
}

func TestInitialize_CaptchaRejected(t *testing.T) {
	backend := &fakeBackend{loginErr: errors.ErrCaptchaRejected}
	solver := &fakeSolver{code: "wrong"}
	m, _ := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B", StageSubNo: "2B.1"})

	err := m.Initialize(context.Background())
	if !errors.Is(err, errors.ErrCaptchaRejected) {
		t.Fatalf("Expected ErrCaptchaRejected, got %v", err)
	}
	if m.State() != LoggedOut {
		t.Errorf("Expected LoggedOut after rejection, got %s", m.State())
	}
	// Отклонение сообщается решателю: следующая попытка через человека
	if solver.rejected != 1 {
		t.Errorf("Expected solver.ReportRejected, got %d calls", solver.rejected)
	}
}

func TestUnsolicitedLogout_RestoresSession(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B", StageSubNo: "2B.1"})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Хост сам разлогинивает без клика пользователя
	st.DispatchLogout()

	if m.State() != LoggedIn {
		t.Errorf("Expected session to be restored, got %s", m.State())
	}
	if st.GetField(store.FieldAuthToken) != "token-content" {
		t.Errorf("Expected auth token restored, got %q", st.GetField(store.FieldAuthToken))
	}
	if st.GetField(store.FieldUserName) != "user1" {
		t.Errorf("Expected username restored, got %q", st.GetField(store.FieldUserName))
	}
	if st.CurrentPath() != "/booking" {
		t.Errorf("Expected navigation back to /booking, got %q", st.CurrentPath())
	}
	// Вход заново не выполнялся
	if backend.loginCalls != 1 {
		t.Errorf("Expected no re-login, got %d login calls", backend.loginCalls)
	}
}

func TestUserClickedLogout_NoRestore(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B", StageSubNo: "2B.1"})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	st.SetUserClickedLogout(true)
	st.DispatchLogout()

	if m.State() != LoggedOut {
		t.Errorf("Expected LoggedOut after deliberate logout, got %s", m.State())
	}
	if st.GetField(store.FieldAuthToken) != "" {
		t.Errorf("Expected cleared auth token, got %q", st.GetField(store.FieldAuthToken))
	}
	// Флаг клика одноразовый
	if st.UserClickedLogout() {
		t.Error("Expected click flag to be reset after one use")
	}

	// Последующий непрошенный разлогин восстанавливает заново вошедшую сессию
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Re-initialize failed: %v", err)
	}
	st.DispatchLogout()
	if m.State() != LoggedIn {
		t.Errorf("Expected restore to work again after deliberate logout, got %s", m.State())
	}
}

func TestEnsureCourseSelected_NoEligibleCourse(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B"})

	st.SetCourseList([]store.Course{
		{CourseType: "2B", StageSubNo: "2B.1", PracticalBookingOpen: false},
		{CourseType: "2B", StageSubNo: "2B.2", PracticalBookingOpen: false},
	})

	if err := m.EnsureCourseSelected(context.Background()); !errors.Is(err, errors.ErrNoEligibleCourse) {
		t.Errorf("Expected ErrNoEligibleCourse, got %v", err)
	}
}

func TestEnsureCourseSelected_PicksFirstEligible(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B"})

	st.SetCourseList([]store.Course{
		{CourseType: "2A", StageSubNo: "2A.1", PracticalBookingOpen: false},
		{CourseType: "2B", StageSubNo: "2B.2", StageSubDesc: "Road", SubVehicleType: "MC", PracticalBookingOpen: true},
		{CourseType: "3A", StageSubNo: "3A.1", PracticalBookingOpen: true},
	})

	if err := m.EnsureCourseSelected(context.Background()); err != nil {
		t.Fatalf("EnsureCourseSelected failed: %v", err)
	}

	if st.GetField(store.FieldCourseType) != "2B" {
		t.Errorf("Expected first eligible course, got %q", st.GetField(store.FieldCourseType))
	}
	if st.CurrentPath() != "/booking/choose-slot" {
		t.Errorf("Expected navigation to slot chooser, got %q", st.CurrentPath())
	}
}

func TestEnsureCourseSelected_Idempotent(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B"})

	courses := []store.Course{
		{CourseType: "2B", StageSubNo: "2B.2", PracticalBookingOpen: true},
		{CourseType: "3A", StageSubNo: "3A.1", PracticalBookingOpen: true},
	}
	st.SetCourseList(courses)

	if err := m.EnsureCourseSelected(context.Background()); err != nil {
		t.Fatalf("EnsureCourseSelected failed: %v", err)
	}
	st.Navigate("/booking")

	// Повторный вызов с тем же списком курсов ничего не меняет
	if err := m.EnsureCourseSelected(context.Background()); err != nil {
		t.Fatalf("Repeated EnsureCourseSelected failed: %v", err)
	}
	if st.CurrentPath() != "/booking" {
		t.Errorf("Expected no re-navigation on repeat call, got %q", st.CurrentPath())
	}

	// Изменение списка инвалидирует решение
	st.SetCourseList(append(courses, store.Course{CourseType: "2A", StageSubNo: "2A.1", PracticalBookingOpen: true}))
	if err := m.EnsureCourseSelected(context.Background()); err != nil {
		t.Fatalf("EnsureCourseSelected after list change failed: %v", err)
	}
	if st.CurrentPath() != "/booking/choose-slot" {
		t.Errorf("Expected re-selection after course list change, got %q", st.CurrentPath())
	}
}

func TestEnsureCourseSelected_SingleCourseNoNavigation(t *testing.T) {
	backend := &fakeBackend{}
	solver := &fakeSolver{code: "a3X9k"}
	m, st := newTestManager(backend, solver, config.CourseConfig{CourseType: "2B"})

	st.SetCourseList([]store.Course{
		{CourseType: "2B", StageSubNo: "2B.2", PracticalBookingOpen: true},
	})

	if err := m.EnsureCourseSelected(context.Background()); err != nil {
		t.Fatalf("EnsureCourseSelected failed: %v", err)
	}

	// Единственный курс: хост делает redirect сам, навигация не нужна
	if st.GetField(store.FieldCourseType) != "2B" {
		t.Errorf("Expected course type committed, got %q", st.GetField(store.FieldCourseType))
	}
	if st.CurrentPath() != "" {
		t.Errorf("Expected no navigation for a single course, got %q", st.CurrentPath())
	}
}
