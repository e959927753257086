package captcha

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer распознает текст на изображении капчи
type Recognizer interface {
	Recognize(img image.Image) (string, error)
}

// TesseractRecognizer реализует Recognizer поверх tesseract
type TesseractRecognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractRecognizer создает распознаватель, настроенный на
// однострочный алфавитно-цифровой текст
func NewTesseractRecognizer() (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetWhitelist("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, err
	}
	return &TesseractRecognizer{client: client}, nil
}

// Recognize возвращает текст с изображения без пробельных символов
func (r *TesseractRecognizer) Recognize(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", err
	}
	text, err := r.client.Text()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), ""), nil
}

// Close освобождает ресурсы tesseract
func (r *TesseractRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
