package captcha

import (
	"bytes"
	"image/png"
	"strconv"
	"strings"
	"testing"
)

func TestPuzzleAnswerMatchesEquation(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(1, NewBitmapRenderer(1))
	for i := 0; i < 50; i++ {
		puzzle, err := gen.NewPuzzle()
		if err != nil {
			t.Fatalf("new puzzle: %v", err)
		}

		parts := strings.Fields(puzzle.Equation)
		if len(parts) != 3 {
			t.Fatalf("unexpected equation form %q", puzzle.Equation)
		}
		a, _ := strconv.Atoi(parts[0])
		b, _ := strconv.Atoi(parts[2])
		want := a + b
		if parts[1] == "-" {
			want = a - b
		}
		if puzzle.Answer != want {
			t.Fatalf("equation %q answer %d, want %d", puzzle.Equation, puzzle.Answer, want)
		}
		if puzzle.Answer < 0 {
			t.Fatalf("equation %q has negative answer", puzzle.Equation)
		}
		if len(puzzle.Image) == 0 {
			t.Fatalf("puzzle has no image")
		}
	}
}

func TestOptionsContainAnswerExactlyOnce(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(2, NewBitmapRenderer(2))
	for i := 0; i < 100; i++ {
		answer := i * 3
		options := gen.Options(answer)
		if len(options) != OptionCount {
			t.Fatalf("got %d options, want %d", len(options), OptionCount)
		}

		seen := map[int]int{}
		for _, o := range options {
			seen[o]++
		}
		if seen[answer] != 1 {
			t.Fatalf("answer %d appears %d times in %v", answer, seen[answer], options)
		}
		for o, n := range seen {
			if n != 1 {
				t.Fatalf("option %d duplicated in %v", o, options)
			}
		}
	}
}

func TestRendererProducesDecodablePNG(t *testing.T) {
	t.Parallel()

	renderer := NewBitmapRenderer(3)
	data, err := renderer.Render("12 + 34")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode rendered png: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Fatalf("rendered image is empty")
	}

	if _, err := renderer.Render("12 * 34"); err == nil {
		t.Fatalf("unknown character should fail")
	}
}
