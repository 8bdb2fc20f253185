package captcha

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"

	"github.com/pkg/errors"
)

const (
	glyphWidth  = 5
	glyphHeight = 7
	glyphScale  = 8
	margin      = 24
	noiseDots   = 260
)

// glyphs is a 5x7 bitmap font covering exactly the characters an equation
// can contain.
var glyphs = map[rune][glyphHeight]uint8{
	'0': {0b01110, 0b10001, 0b10011, 0b10101, 0b11001, 0b10001, 0b01110},
	'1': {0b00100, 0b01100, 0b00100, 0b00100, 0b00100, 0b00100, 0b01110},
	'2': {0b01110, 0b10001, 0b00001, 0b00010, 0b00100, 0b01000, 0b11111},
	'3': {0b11111, 0b00010, 0b00100, 0b00010, 0b00001, 0b10001, 0b01110},
	'4': {0b00010, 0b00110, 0b01010, 0b10010, 0b11111, 0b00010, 0b00010},
	'5': {0b11111, 0b10000, 0b11110, 0b00001, 0b00001, 0b10001, 0b01110},
	'6': {0b00110, 0b01000, 0b10000, 0b11110, 0b10001, 0b10001, 0b01110},
	'7': {0b11111, 0b00001, 0b00010, 0b00100, 0b01000, 0b01000, 0b01000},
	'8': {0b01110, 0b10001, 0b10001, 0b01110, 0b10001, 0b10001, 0b01110},
	'9': {0b01110, 0b10001, 0b10001, 0b01111, 0b00001, 0b00010, 0b01100},
	'+': {0b00000, 0b00100, 0b00100, 0b11111, 0b00100, 0b00100, 0b00000},
	'-': {0b00000, 0b00000, 0b00000, 0b11111, 0b00000, 0b00000, 0b00000},
	' ': {},
}

// BitmapRenderer draws equations as PNG with per-image noise so two renders
// of the same equation are not byte-identical.
type BitmapRenderer struct {
	rnd *rand.Rand
}

func NewBitmapRenderer(seed int64) *BitmapRenderer {
	return &BitmapRenderer{rnd: rand.New(rand.NewSource(seed))}
}

func (r *BitmapRenderer) Render(equation string) ([]byte, error) {
	runes := []rune(equation)
	for _, c := range runes {
		if _, ok := glyphs[c]; !ok {
			return nil, errors.Errorf("cant render character %q", c)
		}
	}

	width := len(runes)*(glyphWidth+1)*glyphScale + 2*margin
	height := glyphHeight*glyphScale + 2*margin
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 245, G: 245, B: 240, A: 255}), image.Point{}, draw.Src)

	for i := 0; i < noiseDots; i++ {
		img.Set(r.rnd.Intn(width), r.rnd.Intn(height), color.RGBA{
			R: uint8(r.rnd.Intn(256)),
			G: uint8(r.rnd.Intn(256)),
			B: uint8(r.rnd.Intn(256)),
			A: 255,
		})
	}

	ink := color.RGBA{R: 30, G: 30, B: 60, A: 255}
	for i, c := range runes {
		jitter := r.rnd.Intn(glyphScale) - glyphScale/2
		originX := margin + i*(glyphWidth+1)*glyphScale
		originY := margin + jitter
		rows := glyphs[c]
		for y, row := range rows {
			for x := 0; x < glyphWidth; x++ {
				if row&(1<<(glyphWidth-1-x)) == 0 {
					continue
				}
				px := originX + x*glyphScale
				py := originY + y*glyphScale
				draw.Draw(img, image.Rect(px, py, px+glyphScale, py+glyphScale), image.NewUniform(ink), image.Point{}, draw.Src)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "cant encode captcha png")
	}
	return buf.Bytes(), nil
}
