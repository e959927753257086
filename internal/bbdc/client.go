package bbdc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"bbdc_booking_monitor/pkg/errors"
	"bbdc_booking_monitor/pkg/logger"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultKeepAlive = 30 * time.Second
	maxIdleConns     = 10
	idleConnTimeout  = 90 * time.Second

	// AuthCookieName — имя cookie с токеном авторизации
	AuthCookieName = "bbdc-token"
)

// Client выполняет аутентифицированные запросы к бэкенду BBDC
type Client struct {
	httpClient *http.Client
	baseURL    string
	referrer   string
	log        *logger.Logger

	mu         sync.Mutex
	authToken  string
	jsessionID string
}

// New создает новый клиент бэкенда с cookie jar и настроенным transport
func New(baseURL string, log *logger.Logger) *Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultTimeout,
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		MaxIdleConns:      maxIdleConns,
		IdleConnTimeout:   idleConnTimeout,
		ForceAttemptHTTP2: true,
	}

	return &Client{
		httpClient: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		baseURL:  baseURL,
		referrer: "https://booking.bbdc.sg/",
		log:      log,
	}
}

// SetAuthToken сохраняет токен авторизации и дублирует его в cookie jar,
// как это делает браузер с cookie bbdc-token
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()

	if u, err := url.Parse(c.baseURL); err == nil {
		c.httpClient.Jar.SetCookies(u, []*http.Cookie{{
			Name:  AuthCookieName,
			Value: url.QueryEscape(token),
			Path:  "/",
		}})
	}
}

// AuthToken возвращает текущий токен авторизации
func (c *Client) AuthToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken
}

// SetJSessionID сохраняет jsessionid, выдаваемый хостом при входе
func (c *Client) SetJSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jsessionID = id
}

// post выполняет POST запрос и разбирает общий конверт ответа.
// Сентинел "No access token." транслируется в ErrNoAccessToken.
func (c *Client) post(ctx context.Context, path string, payload interface{}) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "REQUEST_ENCODE", "failed to encode request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "REQUEST_BUILD", "failed to build request")
	}

	c.mu.Lock()
	authToken := c.authToken
	jsessionID := c.jsessionID
	c.mu.Unlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authToken)
	req.Header.Set("JSESSIONID", jsessionID)
	req.Header.Set("Referer", c.referrer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ErrTransientHTTP.WithError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.ErrTransientHTTP.WithError(fmt.Errorf("HTTP %d on %s", resp.StatusCode, path))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrTransientHTTP.WithError(err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.ErrInvalidResponse.WithError(err)
	}

	if env.Message == MsgNoAccessToken {
		return nil, errors.ErrNoAccessToken
	}

	return &env, nil
}

// CheckIDAndPass проверяет учетные данные перед выдачей капчи.
// Бэкенд переводит сессию в ожидающее состояние, тело ответа не несет данных.
func (c *Client) CheckIDAndPass(ctx context.Context, username, password string) error {
	env, err := c.post(ctx, "/api/auth/checkIdAndPass", map[string]string{
		"userId":   username,
		"userPass": password,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return errors.New("CREDENTIALS_REJECTED", env.Message)
	}
	return nil
}

// GetLoginCaptchaImage запрашивает одноразовую капчу для входа
func (c *Client) GetLoginCaptchaImage(ctx context.Context) (*CaptchaPayload, error) {
	env, err := c.post(ctx, "/api/auth/getLoginCaptchaImage", map[string]string{})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, errors.ErrInvalidResponse.WithContext(env.Message)
	}

	var payload CaptchaPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, errors.ErrInvalidResponse.WithError(err)
	}
	return &payload, nil
}

// Login выполняет вход с решенной капчей. Отклонение капчи бэкендом
// возвращается как ErrCaptchaRejected, токены повторно не используются.
func (c *Client) Login(ctx context.Context, username, password, captchaToken, verifyCodeID, verifyCodeValue string) (*LoginData, error) {
	env, err := c.post(ctx, "/api/auth/login", map[string]string{
		"userId":          username,
		"userPass":        password,
		"captchaToken":    captchaToken,
		"verifyCodeId":    verifyCodeID,
		"verifyCodeValue": verifyCodeValue,
	})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, errors.ErrCaptchaRejected.WithContext(env.Message)
	}

	var data LoginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.ErrInvalidResponse.WithError(err)
	}
	return &data, nil
}

// ListPracSlotReleased запрашивает выпущенные практические слоты
func (c *Client) ListPracSlotReleased(ctx context.Context, q SlotQuery) (*SlotListData, error) {
	env, err := c.post(ctx, "/api/booking/c2practical/listPracSlotReleased", q)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, errors.ErrInvalidResponse.WithContext(env.Message)
	}

	var data SlotListData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.ErrInvalidResponse.WithError(err)
	}
	return &data, nil
}

// ListPracticalTrainings запрашивает историю практических занятий
func (c *Client) ListPracticalTrainings(ctx context.Context, courseType string) ([]Training, error) {
	env, err := c.post(ctx, "/api/booking/c2practical/listPracticalTrainings", map[string]interface{}{
		"courseType": courseType,
		"pageNo":     1,
		"pageSize":   50,
	})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, errors.ErrInvalidResponse.WithContext(env.Message)
	}

	var data trainingListData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.ErrInvalidResponse.WithError(err)
	}
	return data.PracticalTrainingList, nil
}

// CheckExistsC3PracticalTrainingSlot проверяет наличие слотов вторичного
// типа курса. Наличие выводится из текста сообщения, а не из данных.
func (c *Client) CheckExistsC3PracticalTrainingSlot(ctx context.Context, courseType string) (bool, error) {
	env, err := c.post(ctx, "/api/booking/c3practical/checkExistsC3PracticalTrainingSlot", map[string]string{
		"courseType": courseType,
	})
	if err != nil {
		return false, err
	}
	return env.Message != MsgNoC3Slot, nil
}
