// Package captcha builds the arithmetic puzzles shown to joining members
// during human verification.
package captcha

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
)

const (
	// OptionCount is how many answer buttons accompany a puzzle.
	OptionCount = 4

	// MaxRegenerations caps how many fresh puzzles one member may request
	// within a single verification attempt.
	MaxRegenerations = 3

	decoyCeiling = 200
)

// Puzzle is one rendered challenge. Image holds PNG bytes for the image
// backend; Equation is the plain-text form used by the web backend.
type Puzzle struct {
	Equation string
	Answer   int
	Image    []byte
}

// Renderer turns an equation into picture bytes. The stock implementation
// lives in render.go; tests substitute their own.
type Renderer interface {
	Render(equation string) ([]byte, error)
}

// Generator produces puzzles with a private randomness source.
type Generator struct {
	rnd      *rand.Rand
	renderer Renderer
}

func NewGenerator(seed int64, renderer Renderer) *Generator {
	return &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		renderer: renderer,
	}
}

// NewPuzzle builds a random two-operand equation and renders it.
func (g *Generator) NewPuzzle() (*Puzzle, error) {
	a := g.rnd.Intn(90) + 10
	b := g.rnd.Intn(90) + 10

	var equation string
	var answer int
	if g.rnd.Intn(2) == 0 {
		equation = fmt.Sprintf("%d + %d", a, b)
		answer = a + b
	} else {
		if a < b {
			a, b = b, a
		}
		equation = fmt.Sprintf("%d - %d", a, b)
		answer = a - b
	}

	image, err := g.renderer.Render(equation)
	if err != nil {
		return nil, errors.Wrap(err, "cant render captcha")
	}
	return &Puzzle{Equation: equation, Answer: answer, Image: image}, nil
}

// Options returns OptionCount shuffled answers containing the correct one
// exactly once; the decoys are distinct random numbers below decoyCeiling.
func (g *Generator) Options(answer int) []int {
	seen := map[int]struct{}{answer: {}}
	options := []int{answer}
	for len(options) < OptionCount {
		decoy := g.rnd.Intn(decoyCeiling)
		if _, dup := seen[decoy]; dup {
			continue
		}
		seen[decoy] = struct{}{}
		options = append(options, decoy)
	}
	g.rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}
