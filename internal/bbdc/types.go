package bbdc

import "encoding/json"

// Сентинельные строки бэкенда. Сравниваются на точное равенство.
const (
	// MsgNoAccessToken возвращается при истекшей сессии
	MsgNoAccessToken = "No access token."
	// MsgNoC3Slot возвращается existence-endpoint'ом при отсутствии слотов
	MsgNoC3Slot = "No practical training slot available."
	// BookingProgressAvailable помечает свободный слот
	BookingProgressAvailable = "Available"
)

// envelope представляет общий конверт ответов бэкенда
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CaptchaPayload представляет выданную бэкендом капчу.
// Токены одноразовые, повторная отправка того же token отклоняется.
type CaptchaPayload struct {
	Image        string `json:"image"` // base64 PNG
	CaptchaToken string `json:"captchaToken"`
	VerifyCodeID string `json:"verifyCodeId"`
}

// LoginData представляет данные успешного входа
type LoginData struct {
	Username     string `json:"username"`
	TokenContent string `json:"tokenContent"`
}

// ReleasedSlot представляет один слот из listPracSlotReleased
type ReleasedSlot struct {
	SessionNo       int    `json:"c2psrSessionNo"`
	BookingProgress string `json:"bookingProgress"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
}

// Available сообщает, свободен ли слот для бронирования
func (s ReleasedSlot) Available() bool {
	return s.BookingProgress == BookingProgressAvailable
}

// SlotListData представляет ответ listPracSlotReleased
type SlotListData struct {
	// Ключ — дата в виде "2006-01-02 15:04:05" либо "2006-01-02"
	ReleasedSlotListGroupByDay map[string][]ReleasedSlot `json:"releasedSlotListGroupByDay"`
	ReleasedSlotMonthList      []string                  `json:"releasedSlotMonthList"`
}

// SlotQuery представляет параметры запроса listPracSlotReleased
type SlotQuery struct {
	CourseType     string `json:"courseType"`
	StageSubNo     string `json:"stageSubNo"`
	StageSubDesc   string `json:"stageSubDesc"`
	SubVehicleType string `json:"subVehicleType"`
	InsInstructorID string `json:"insInstructorId"`
	// ReleasedSlotMonth ограничивает выдачу одним месяцем (формат 200601),
	// пустое значение означает месяц по умолчанию
	ReleasedSlotMonth string `json:"releasedSlotMonth,omitempty"`
}

// Training представляет запись из listPracticalTrainings
type Training struct {
	SubStageSubNo  string `json:"subStageSubNo"`
	SubDesc        string `json:"subDesc"`
	SubVehicleType string `json:"subVehicleType"`
	CanDoBooking   bool   `json:"canDoBooking"`
}

// trainingListData представляет конверт выдачи listPracticalTrainings
type trainingListData struct {
	PracticalTrainingList []Training `json:"practicalTrainingList"`
}
