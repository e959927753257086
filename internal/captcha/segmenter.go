package captcha

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Порог близости цвета к цветовому классу (квадрат расстояния по RGB)
const colorMatchThreshold = 3 * 32 * 32

// Минимальное число пикселей, чтобы цвет считался классом глифа, а не шумом
const minClassPixels = 10

// Segmenter изолирует глифы зашумленной капчи кластеризацией по
// доминирующим цветам и раскладывает их заново с равными промежутками
type Segmenter struct {
	// TargetWidth — ширина итогового изображения
	TargetWidth int
	// TopColors — число цветовых классов глифов (K)
	TopColors int
}

// NewSegmenter создает сегментер с шириной выходного изображения
func NewSegmenter(targetWidth int) *Segmenter {
	return &Segmenter{
		TargetWidth: targetWidth,
		TopColors:   5,
	}
}

// Segment возвращает перераскладку глифов исходной капчи. Любая ошибка
// обработки деградирует до возврата исходного изображения: распознавание
// по необработанной картинке хуже, но не фатально.
func (s *Segmenter) Segment(src image.Image) (out image.Image) {
	defer func() {
		if r := recover(); r != nil {
			out = src
		}
	}()

	res, err := s.segment(src)
	if err != nil {
		return src
	}
	return res
}

type colorKey struct {
	r, g, b uint8
}

type glyphBox struct {
	class  int
	bounds image.Rectangle
}

func (s *Segmenter) segment(src image.Image) (image.Image, error) {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty image %v", bounds)
	}

	// Частоты цветов по всем пикселям
	freq := make(map[colorKey]int)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			freq[keyOf(src.At(x, y))]++
		}
	}

	ranked := make([]colorKey, 0, len(freq))
	for k := range freq {
		ranked = append(ranked, k)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return less(ranked[i], ranked[j])
	})

	// Самый частый цвет считается фоном/шумом и исключается
	if len(ranked) < 2 {
		return nil, fmt.Errorf("image has %d distinct colors", len(ranked))
	}
	classes := make([]colorKey, 0, s.TopColors)
	for _, k := range ranked[1:] {
		if len(classes) == s.TopColors {
			break
		}
		if freq[k] < minClassPixels {
			break
		}
		classes = append(classes, k)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no glyph color classes detected")
	}

	// Классификация пикселей: ближайший подходящий класс либо фон (-1)
	classOf := make([]int8, width*height)
	boxes := make([]image.Rectangle, len(classes))
	seen := make([]bool, len(classes))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			k := keyOf(src.At(bounds.Min.X+x, bounds.Min.Y+y))
			best, bestDist := -1, colorMatchThreshold+1
			for i, c := range classes {
				if d := dist(k, c); d < bestDist {
					best, bestDist = i, d
				}
			}
			classOf[y*width+x] = int8(best)
			if best < 0 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if !seen[best] {
				boxes[best] = px
				seen[best] = true
			} else {
				boxes[best] = boxes[best].Union(px)
			}
		}
	}

	glyphs := make([]glyphBox, 0, len(classes))
	for i, b := range boxes {
		if seen[i] {
			glyphs = append(glyphs, glyphBox{class: i, bounds: b})
		}
	}
	if len(glyphs) == 0 {
		return nil, fmt.Errorf("no glyphs located")
	}

	// Глифы размещаются слева направо в порядке исходных x-координат
	sort.Slice(glyphs, func(i, j int) bool {
		return glyphs[i].bounds.Min.X < glyphs[j].bounds.Min.X
	})

	sumWidths := 0
	for _, g := range glyphs {
		sumWidths += g.bounds.Dx()
	}

	targetWidth := s.TargetWidth
	gap := (targetWidth - sumWidths) / (len(glyphs) + 1)
	if gap < 1 {
		gap = 1
		targetWidth = sumWidths + gap*(len(glyphs)+1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	x0 := gap
	for _, g := range glyphs {
		for y := g.bounds.Min.Y; y < g.bounds.Max.Y; y++ {
			for x := g.bounds.Min.X; x < g.bounds.Max.X; x++ {
				if classOf[y*width+x] == int8(g.class) {
					dst.Set(x0+(x-g.bounds.Min.X), y, color.Black)
				}
			}
		}
		x0 += g.bounds.Dx() + gap
	}

	return dst, nil
}

// keyOf переводит цвет в 8-битный RGB ключ
func keyOf(c color.Color) colorKey {
	r, g, b, _ := c.RGBA()
	return colorKey{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// dist возвращает квадрат евклидова расстояния между цветами
func dist(a, b colorKey) int {
	dr := int(a.r) - int(b.r)
	dg := int(a.g) - int(b.g)
	db := int(a.b) - int(b.b)
	return dr*dr + dg*dg + db*db
}

// less задает детерминированный порядок цветов при равной частоте
func less(a, b colorKey) bool {
	if a.r != b.r {
		return a.r < b.r
	}
	if a.g != b.g {
		return a.g < b.g
	}
	return a.b < b.b
}

// ScaleToHeight масштабирует изображение до заданной высоты с сохранением
// пропорций. Используется для приведения сегментированной капчи к размеру,
// удобному для распознавания.
func ScaleToHeight(img image.Image, h int) image.Image {
	b := img.Bounds()
	if b.Dy() == h || b.Dy() == 0 {
		return img
	}
	w := b.Dx() * h / b.Dy()
	if w < 1 {
		w = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// DecodeBase64Image декодирует base64 изображение капчи,
// опциональный data-URI префикс отбрасывается
func DecodeBase64Image(s string) (image.Image, error) {
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
