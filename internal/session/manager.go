package session

import (
	"context"
	"sync"

	"bbdc_booking_monitor/internal/bbdc"
	"bbdc_booking_monitor/internal/captcha"
	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/internal/store"
	"bbdc_booking_monitor/pkg/errors"
	"bbdc_booking_monitor/pkg/logger"
	"bbdc_booking_monitor/pkg/metrics"
)

// State представляет состояние сессии
type State int

const (
	LoggedOut State = iota
	AwaitingCaptcha
	LoggedIn
)

var stateNames = map[State]string{
	LoggedOut:       "logged_out",
	AwaitingCaptcha: "awaiting_captcha",
	LoggedIn:        "logged_in",
}

// String возвращает имя состояния
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Backend — операции аутентификации бэкенда, реализуемые *bbdc.Client
type Backend interface {
	CheckIDAndPass(ctx context.Context, username, password string) error
	GetLoginCaptchaImage(ctx context.Context) (*bbdc.CaptchaPayload, error)
	Login(ctx context.Context, username, password, captchaToken, verifyCodeID, verifyCodeValue string) (*bbdc.LoginData, error)
	SetAuthToken(token string)
	AuthToken() string
	SetJSessionID(id string)
}

// Solver — интерфейс решателя капчи, реализуемый *captcha.Solver
type Solver interface {
	Solve(ctx context.Context, ch *captcha.Challenge) (string, error)
	ReportRejected()
	ReportLoginSuccess()
}

// identitySnapshot — поля идентичности, кэшируемые в момент
// непрошенного разлогина для последующего восстановления
type identitySnapshot struct {
	username   string
	courseType string
	authToken  string
	rawCookie  string
}

// Manager ведет машину состояний сессии: вход через капчу, выбор курса,
// обнаружение непрошенного разлогина и восстановление состояния
type Manager struct {
	backend Backend
	store   store.SessionStore
	solver  Solver
	log     *logger.Logger
	notify  func(title, body string)

	username string
	password string
	course   config.CourseConfig

	mu         sync.Mutex
	state      State
	cached     *identitySnapshot
	deliberate bool
	// Снимок списка курсов на момент решения о выборе курса. Изменение
	// списка инвалидирует решение, процедура повторяется на следующем тике.
	decidedCourses []store.Course
}

// NewManager создает менеджер сессии и подписывается на действие разлогина.
// notify используется для уведомлений о невосстановимых ошибках, может быть nil.
func NewManager(
	backend Backend,
	sessionStore store.SessionStore,
	solver Solver,
	auth config.AuthConfig,
	course config.CourseConfig,
	notify func(title, body string),
	log *logger.Logger,
) *Manager {
	m := &Manager{
		backend:  backend,
		store:    sessionStore,
		solver:   solver,
		log:      log,
		notify:   notify,
		username: auth.Username,
		password: auth.Password,
		course:   course,
	}
	sessionStore.SubscribeLogout(m.beforeLogout, m.afterLogout)
	return m
}

// State возвращает текущее состояние сессии
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	metrics.SessionState.Set(float64(s))
}

// Initialize выполняет полный цикл входа: проверка учетных данных, капча,
// верификация, выбор курса. Сетевые ошибки не ретраятся здесь — внешний
// цикл инициализации вызывает Initialize по таймеру до успеха.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.username == "" || m.password == "" {
		return errors.ErrCredentialsMissing
	}

	m.setState(AwaitingCaptcha)
	m.log.Info("starting login handshake", logger.String("user", m.username))

	if err := m.backend.CheckIDAndPass(ctx, m.username, m.password); err != nil {
		m.setState(LoggedOut)
		metrics.LoginAttempts.WithLabelValues("credentials_failed").Inc()
		return err
	}

	payload, err := m.backend.GetLoginCaptchaImage(ctx)
	if err != nil {
		m.setState(LoggedOut)
		metrics.LoginAttempts.WithLabelValues("captcha_fetch_failed").Inc()
		return err
	}

	img, err := captcha.DecodeBase64Image(payload.Image)
	if err != nil {
		m.setState(LoggedOut)
		return errors.ErrInvalidResponse.WithError(err)
	}

	challenge := &captcha.Challenge{
		RawImage:     img,
		Token:        payload.CaptchaToken,
		VerifyCodeID: payload.VerifyCodeID,
	}

	code, err := m.solver.Solve(ctx, challenge)
	if err != nil {
		m.setState(LoggedOut)
		metrics.LoginAttempts.WithLabelValues("captcha_unsolved").Inc()
		return err
	}

	data, err := m.backend.Login(ctx, m.username, m.password, challenge.Token, challenge.VerifyCodeID, code)
	if err != nil {
		m.setState(LoggedOut)
		if errors.Is(err, errors.ErrCaptchaRejected) {
			// Следующая попытка пойдет через человека
			m.solver.ReportRejected()
			metrics.LoginAttempts.WithLabelValues("captcha_rejected").Inc()
		} else {
			metrics.LoginAttempts.WithLabelValues("verify_failed").Inc()
		}
		return err
	}

	// Токен уходит и в cookie, и в состояние хоста, как делает страница
	m.backend.SetAuthToken(data.TokenContent)
	m.backend.SetJSessionID(data.TokenContent)
	m.store.CommitField(store.FieldUserName, data.Username)
	m.store.CommitField(store.FieldAuthToken, data.TokenContent)

	m.solver.ReportLoginSuccess()
	m.setState(LoggedIn)
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	m.log.Info("login confirmed", logger.String("user", data.Username))

	if err := m.EnsureCourseSelected(ctx); err != nil {
		// Вход состоялся, но мониторинг без курса не запустится.
		// Требуется ручное вмешательство, автоматических повторов нет.
		m.log.Error("course selection failed", logger.Error(err))
		if m.notify != nil {
			m.notify("Course selection failed", err.Error())
		}
	}

	return nil
}

// EnsureCourseSelected выбирает активный курс, если он еще не выбран.
// Процедура идемпотентна и повторно выполняется на каждом тике опроса;
// изменение списка курсов инвалидирует прежнее решение.
func (m *Manager) EnsureCourseSelected(ctx context.Context) error {
	courses := m.store.GetCourseList()

	m.mu.Lock()
	decided := m.decidedCourses
	m.mu.Unlock()

	if m.store.GetField(store.FieldCourseType) != "" && coursesEqual(decided, courses) {
		return nil
	}

	// Явно сконфигурированный курс имеет приоритет над списком
	if m.course.StageSubNo != "" {
		m.store.CommitField(store.FieldCourseType, m.course.CourseType)
		m.store.CommitField(store.FieldStageSubNo, m.course.StageSubNo)
		m.store.CommitField(store.FieldStageSubDesc, m.course.StageSubDesc)
		m.store.CommitField(store.FieldSubVehicleType, m.course.SubVehicleType)
		m.rememberDecision(courses)
		return nil
	}

	var eligible []store.Course
	for _, c := range courses {
		if c.PracticalBookingOpen {
			eligible = append(eligible, c)
		}
	}

	switch {
	case len(eligible) == 0:
		return errors.ErrNoEligibleCourse
	case len(courses) == 1:
		// Единственный курс: хост сам сделает redirect, вмешательство не нужно
		m.store.CommitField(store.FieldCourseType, courses[0].CourseType)
		m.rememberDecision(courses)
		return nil
	default:
		pick := eligible[0]
		m.store.CommitField(store.FieldCourseType, pick.CourseType)
		m.store.CommitField(store.FieldStageSubNo, pick.StageSubNo)
		m.store.CommitField(store.FieldStageSubDesc, pick.StageSubDesc)
		m.store.CommitField(store.FieldSubVehicleType, pick.SubVehicleType)
		m.store.Navigate("/booking/choose-slot")
		m.rememberDecision(courses)
		m.log.Info("course selected",
			logger.String("courseType", pick.CourseType),
			logger.String("stageSubNo", pick.StageSubNo))
		return nil
	}
}

func (m *Manager) rememberDecision(courses []store.Course) {
	m.mu.Lock()
	m.decidedCourses = append([]store.Course{}, courses...)
	m.mu.Unlock()
}

func coursesEqual(a, b []store.Course) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// beforeLogout вызывается до очистки состояния хостом. Непрошенный
// разлогин (без флага клика) кэширует поля идентичности.
func (m *Manager) beforeLogout() {
	if m.store.UserClickedLogout() {
		m.mu.Lock()
		m.deliberate = true
		m.cached = nil
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.deliberate = false
	m.cached = &identitySnapshot{
		username:   m.store.GetField(store.FieldUserName),
		courseType: m.store.GetField(store.FieldCourseType),
		authToken:  m.store.GetField(store.FieldAuthToken),
		rawCookie:  m.backend.AuthToken(),
	}
	m.mu.Unlock()
}

// afterLogout вызывается после завершения перехода. Для непрошенного
// разлогина восстанавливает идентичность и навигацию; для пользовательского
// ничего не восстанавливает и сбрасывает флаг клика после одного использования.
func (m *Manager) afterLogout() {
	m.mu.Lock()
	deliberate := m.deliberate
	cached := m.cached
	m.mu.Unlock()

	if deliberate {
		m.store.SetUserClickedLogout(false)
		m.setState(LoggedOut)
		m.log.Info("user-initiated logout, session ended")
		return
	}

	if cached == nil {
		m.setState(LoggedOut)
		return
	}

	m.store.CommitField(store.FieldUserName, cached.username)
	m.store.CommitField(store.FieldCourseType, cached.courseType)
	m.store.CommitField(store.FieldAuthToken, cached.authToken)
	m.backend.SetAuthToken(cached.rawCookie)
	m.store.Navigate("/booking")
	m.setState(LoggedIn)

	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	metrics.SessionRestores.Inc()
	m.log.Warn("unsolicited logout detected, session state restored",
		logger.String("user", cached.username))
}
