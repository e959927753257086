package store

import "sync"

// Имена полей состояния, используемые менеджером сессии
const (
	FieldUserName       = "username"
	FieldAuthToken      = "authToken"
	FieldCourseType     = "courseType"
	FieldStageSubNo     = "stageSubNo"
	FieldStageSubDesc   = "stageSubDesc"
	FieldSubVehicleType = "subVehicleType"
)

// Course представляет курс из списка курсов аккаунта
type Course struct {
	CourseType           string
	StageSubNo           string
	StageSubDesc         string
	SubVehicleType       string
	PracticalBookingOpen bool
}

// SessionStore — узкий интерфейс над состоянием хоста. Портативная замена
// реактивного стора страницы: чтение/запись полей сессии, навигация и
// подписка на разлогин.
type SessionStore interface {
	GetUserName() string
	GetCourseList() []Course
	GetField(name string) string
	CommitField(name, value string)
	Navigate(path string)
	CurrentPath() string

	// SubscribeLogout регистрирует пару хуков вокруг действия разлогина:
	// before вызывается до очистки состояния, after — после
	SubscribeLogout(before, after func())

	// UserClickedLogout сообщает, был ли разлогин инициирован кликом
	// пользователя. Флаг взводится UI-слоем и сбрасывается после
	// одного использования.
	UserClickedLogout() bool
	SetUserClickedLogout(v bool)
}

// MemoryStore — потокобезопасная реализация SessionStore в памяти.
// Агент владеет состоянием сам, вместо чтения внутренностей UI фреймворка.
type MemoryStore struct {
	mu          sync.Mutex
	fields      map[string]string
	courses     []Course
	path        string
	userClicked bool

	beforeLogout []func()
	afterLogout  []func()
}

// NewMemoryStore создает пустое хранилище состояния сессии
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields: make(map[string]string),
	}
}

// GetUserName возвращает имя пользователя текущей сессии
func (s *MemoryStore) GetUserName() string {
	return s.GetField(FieldUserName)
}

// GetCourseList возвращает копию списка курсов
func (s *MemoryStore) GetCourseList() []Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Course, len(s.courses))
	copy(out, s.courses)
	return out
}

// SetCourseList заменяет список курсов аккаунта
func (s *MemoryStore) SetCourseList(courses []Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = make([]Course, len(courses))
	copy(s.courses, courses)
}

// GetField возвращает значение поля состояния
func (s *MemoryStore) GetField(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[name]
}

// CommitField записывает значение поля состояния
func (s *MemoryStore) CommitField(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[name] = value
}

// Navigate запоминает текущий путь навигации
func (s *MemoryStore) Navigate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

// CurrentPath возвращает последний путь навигации
func (s *MemoryStore) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SubscribeLogout регистрирует хуки вокруг действия разлогина
func (s *MemoryStore) SubscribeLogout(before, after func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if before != nil {
		s.beforeLogout = append(s.beforeLogout, before)
	}
	if after != nil {
		s.afterLogout = append(s.afterLogout, after)
	}
}

// UserClickedLogout возвращает флаг клика по кнопке выхода
func (s *MemoryStore) UserClickedLogout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userClicked
}

// SetUserClickedLogout взводит или сбрасывает флаг клика
func (s *MemoryStore) SetUserClickedLogout(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userClicked = v
}

// DispatchLogout воспроизводит действие разлогина хоста: before-хуки,
// очистка auth-полей, after-хуки. Хуки вызываются без удержания мьютекса.
func (s *MemoryStore) DispatchLogout() {
	s.mu.Lock()
	before := append([]func(){}, s.beforeLogout...)
	after := append([]func(){}, s.afterLogout...)
	s.mu.Unlock()

	for _, hook := range before {
		hook()
	}

	s.mu.Lock()
	delete(s.fields, FieldAuthToken)
	delete(s.fields, FieldUserName)
	s.mu.Unlock()

	for _, hook := range after {
		hook()
	}
}
