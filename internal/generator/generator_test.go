package generator

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
)

func newTestGenerator(seed int64) *Generator {
	return New(rand.New(rand.NewSource(seed)))
}

// parsePrompt splits "a <op> b = ?" into its operands and operator symbol.
func parsePrompt(t *testing.T, prompt string) (int, string, int) {
	t.Helper()
	parts := strings.Fields(prompt)
	if len(parts) != 5 || parts[3] != "=" || parts[4] != "?" {
		t.Fatalf("malformed prompt %q", prompt)
	}
	left, err := strconv.Atoi(parts[0])
	if err != nil {
		t.Fatalf("left operand in %q: %v", prompt, err)
	}
	right, err := strconv.Atoi(parts[2])
	if err != nil {
		t.Fatalf("right operand in %q: %v", prompt, err)
	}
	return left, parts[1], right
}

func TestGenerateOptionInvariants(t *testing.T) {
	g := newTestGenerator(1)

	for _, d := range []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard} {
		for i := 0; i < 500; i++ {
			q := g.Generate(d)

			if len(q.Options) != 4 {
				t.Fatalf("%s: got %d options, want 4", d, len(q.Options))
			}

			seen := make(map[string]bool, 4)
			correctHits := 0
			for _, opt := range q.Options {
				if seen[opt] {
					t.Fatalf("%s: duplicate option %q in %v", d, opt, q.Options)
				}
				seen[opt] = true

				n, err := strconv.Atoi(opt)
				if err != nil {
					t.Fatalf("%s: non-numeric option %q", d, opt)
				}
				if n < 0 {
					t.Fatalf("%s: negative option %q in %v", d, opt, q.Options)
				}
				if opt == q.CorrectAnswer {
					correctHits++
				}
			}
			if correctHits != 1 {
				t.Fatalf("%s: correct answer appears %d times in %v", d, correctHits, q.Options)
			}
		}
	}
}

func TestGenerateArithmetic(t *testing.T) {
	g := newTestGenerator(2)

	for _, d := range []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard} {
		for i := 0; i < 500; i++ {
			q := g.Generate(d)
			left, op, right := parsePrompt(t, q.Prompt)

			want, err := strconv.Atoi(q.CorrectAnswer)
			if err != nil {
				t.Fatalf("non-numeric correct answer %q", q.CorrectAnswer)
			}

			switch op {
			case "+":
				if left+right != want {
					t.Fatalf("%q: correct answer %d", q.Prompt, want)
				}
			case "-":
				if left-right != want {
					t.Fatalf("%q: correct answer %d", q.Prompt, want)
				}
				if want < 0 {
					t.Fatalf("%q: negative subtraction result %d", q.Prompt, want)
				}
			case "×":
				if left*right != want {
					t.Fatalf("%q: correct answer %d", q.Prompt, want)
				}
			case "÷":
				if right == 0 || left%right != 0 {
					t.Fatalf("%q: division is not exact", q.Prompt)
				}
				if left/right != want {
					t.Fatalf("%q: correct answer %d", q.Prompt, want)
				}
			default:
				t.Fatalf("unknown operator %q in %q", op, q.Prompt)
			}
		}
	}
}

func TestEasyHasNoDivision(t *testing.T) {
	g := newTestGenerator(3)
	for i := 0; i < 300; i++ {
		q := g.Generate(model.DifficultyEasy)
		if _, op, _ := parsePrompt(t, q.Prompt); op == "÷" {
			t.Fatalf("easy difficulty produced a division prompt %q", q.Prompt)
		}
	}
}

func TestSeededDeterminism(t *testing.T) {
	a := newTestGenerator(42)
	b := newTestGenerator(42)

	for i := 0; i < 100; i++ {
		qa := a.Generate(model.DifficultyMedium)
		qb := b.Generate(model.DifficultyMedium)

		if qa.Prompt != qb.Prompt || qa.CorrectAnswer != qb.CorrectAnswer {
			t.Fatalf("seeded generators diverged: %q vs %q", qa.Prompt, qb.Prompt)
		}
		for j := range qa.Options {
			if qa.Options[j] != qb.Options[j] {
				t.Fatalf("seeded generators diverged on options: %v vs %v", qa.Options, qb.Options)
			}
		}
	}
}

func TestDistractorsNearZeroResult(t *testing.T) {
	g := newTestGenerator(4)

	// Force small results: EASY subtraction can yield 0, where most of the
	// fixed offset pool is negative and the fallback paths must kick in.
	for _, result := range []int{0, 1, 2} {
		for i := 0; i < 50; i++ {
			got := g.distractors(result)
			if len(got) != 3 {
				t.Fatalf("result %d: got %d distractors, want 3", result, len(got))
			}
			seen := map[string]bool{strconv.Itoa(result): true}
			for _, opt := range got {
				if seen[opt] {
					t.Fatalf("result %d: duplicate distractor %q", result, opt)
				}
				seen[opt] = true
				if n, _ := strconv.Atoi(opt); n < 0 {
					t.Fatalf("result %d: negative distractor %q", result, opt)
				}
			}
		}
	}
}
