package generator

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
)

type operator int

const (
	opAdd operator = iota
	opSub
	opMul
	opDiv
)

func (o operator) symbol() string {
	switch o {
	case opSub:
		return "-"
	case opMul:
		return "×"
	case opDiv:
		return "÷"
	default:
		return "+"
	}
}

// template is one operator with its operand range (inclusive).
// For opDiv the range applies to the divisor and the quotient; the dividend
// is derived so division is always exact.
type template struct {
	op operator
	lo int
	hi int
}

func templatesFor(d model.Difficulty) []template {
	switch d {
	case model.DifficultyMedium:
		return []template{
			{opAdd, 10, 100},
			{opSub, 10, 100},
			{opMul, 5, 20},
			{opDiv, 2, 12},
		}
	case model.DifficultyHard:
		return []template{
			{opAdd, 50, 500},
			{opSub, 50, 500},
			{opMul, 10, 50},
			{opDiv, 5, 20},
		}
	default:
		return []template{
			{opAdd, 1, 20},
			{opSub, 1, 20},
			{opMul, 1, 10},
		}
	}
}

// distractorOffsets is the fixed candidate pool tried (in shuffled order)
// before falling back to random draws.
var distractorOffsets = []int{-2, -1, 1, 2, 3, -3, 5, -5}

const optionCount = 4

// Generator produces arithmetic questions from an injected random source,
// so question streams are reproducible under a seeded source.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator backed by rng. The generator serializes access to
// rng; a single instance is safe for concurrent use.
func New(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate produces one question for the given difficulty: a prompt with
// its exact integer result and four distinct shuffled options, exactly one
// of which is correct.
func (g *Generator) Generate(d model.Difficulty) model.Question {
	g.mu.Lock()
	defer g.mu.Unlock()

	pool := templatesFor(d)
	t := pool[g.rng.Intn(len(pool))]

	var left, right, result int
	switch t.op {
	case opSub:
		left, right = g.draw(t), g.draw(t)
		// Larger operand on the left keeps the result non-negative.
		if right > left {
			left, right = right, left
		}
		result = left - right
	case opMul:
		left, right = g.draw(t), g.draw(t)
		result = left * right
	case opDiv:
		// Build the dividend from divisor × quotient so the division is
		// exact: these questions never produce remainders.
		right = g.draw(t)
		result = g.draw(t)
		left = right * result
	default:
		left, right = g.draw(t), g.draw(t)
		result = left + right
	}

	correct := strconv.Itoa(result)
	options := append(g.distractors(result), correct)
	g.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return model.Question{
		ID:            uuid.New(),
		Prompt:        fmt.Sprintf("%d %s %d = ?", left, t.op.symbol(), right),
		CorrectAnswer: correct,
		Options:       options,
	}
}

func (g *Generator) draw(t template) int {
	return t.lo + g.rng.Intn(t.hi-t.lo+1)
}

// distractors returns three distinct non-negative wrong answers for result.
// It walks the fixed offset pool in shuffled order, then draws random
// positive offsets, and finally sweeps upward so it always terminates.
func (g *Generator) distractors(result int) []string {
	chosen := make([]string, 0, optionCount-1)
	seen := map[int]bool{result: true}

	offsets := make([]int, len(distractorOffsets))
	copy(offsets, distractorOffsets)
	g.rng.Shuffle(len(offsets), func(i, j int) {
		offsets[i], offsets[j] = offsets[j], offsets[i]
	})

	for _, off := range offsets {
		if len(chosen) == optionCount-1 {
			return chosen
		}
		v := result + off
		if v >= 0 && !seen[v] {
			seen[v] = true
			chosen = append(chosen, strconv.Itoa(v))
		}
	}

	// Small results can exhaust the pool (negative candidates rejected).
	for attempts := 0; len(chosen) < optionCount-1 && attempts < 32; attempts++ {
		v := result + 1 + g.rng.Intn(64)
		if !seen[v] {
			seen[v] = true
			chosen = append(chosen, strconv.Itoa(v))
		}
	}

	// Deterministic sweep as the hard termination guarantee.
	for v := result + 1; len(chosen) < optionCount-1; v++ {
		if !seen[v] {
			seen[v] = true
			chosen = append(chosen, strconv.Itoa(v))
		}
	}

	return chosen
}
