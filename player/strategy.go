package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/dylanconnolly/segon-client/trivia"
)

var (
	ErrInvalidChoice   = errors.New("choice out of range")
	ErrNoChoice        = errors.New("no choice available")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Strategy picks an answer for a question. The returned index is one-based
// and must not exceed q.Answerable().
type Strategy interface {
	ChooseAnswer(ctx context.Context, q trivia.Question) (int, error)
}

// StrategyFunc adapts a function to a Strategy.
type StrategyFunc func(ctx context.Context, q trivia.Question) (int, error)

func (f StrategyFunc) ChooseAnswer(ctx context.Context, q trivia.Question) (int, error) {
	return f(ctx, q)
}

// Fixed always picks option n, or the last answerable option when fewer are
// offered.
func Fixed(n int) Strategy {
	return StrategyFunc(func(_ context.Context, q trivia.Question) (int, error) {
		if n < 1 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidChoice, n)
		}
		return min(n, q.Answerable()), nil
	})
}

type random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// Random picks uniformly among the offered options. A nil source uses a
// randomly seeded generator.
func Random(src rand.Source) Strategy {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &random{rnd: rand.New(src)}
}

func (r *random) ChooseAnswer(_ context.Context, q trivia.Question) (int, error) {
	n := q.Answerable()
	if n == 0 {
		return 0, ErrNoChoice
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rnd.IntN(n) + 1, nil
}

type scripted struct {
	mu      sync.Mutex
	choices []int
}

// Scripted returns the given choices in order, one per question, and fails
// with ErrNoChoice once they run out.
func Scripted(choices ...int) Strategy {
	return &scripted{choices: choices}
}

func (s *scripted) ChooseAnswer(context.Context, trivia.Question) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.choices) == 0 {
		return 0, ErrNoChoice
	}
	n := s.choices[0]
	s.choices = s.choices[1:]

	return n, nil
}

// Match picks the first answerable option containing substr, ignoring case,
// and falls back to the first option.
func Match(substr string) Strategy {
	needle := strings.ToLower(substr)
	return StrategyFunc(func(_ context.Context, q trivia.Question) (int, error) {
		if q.Answerable() == 0 {
			return 0, ErrNoChoice
		}
		for i, opt := range q.Options[:q.Answerable()] {
			if strings.Contains(strings.ToLower(opt), needle) {
				return i + 1, nil
			}
		}
		return 1, nil
	})
}

type prompt struct {
	in  *bufio.Scanner
	out io.Writer
}

// Prompt asks a human on out and reads the chosen option number from in.
// Invalid input is re-prompted until in is exhausted.
func Prompt(in io.Reader, out io.Writer) Strategy {
	return &prompt{in: bufio.NewScanner(in), out: out}
}

func (p *prompt) ChooseAnswer(ctx context.Context, q trivia.Question) (int, error) {
	fmt.Fprintf(p.out, "\n%s\n", q.Question)
	for i, opt := range q.Options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fmt.Fprintf(p.out, "answer [1-%d]: ", q.Answerable())

		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return 0, fmt.Errorf("read answer: %w", err)
			}
			return 0, ErrNoChoice
		}

		n, err := strconv.Atoi(strings.TrimSpace(p.in.Text()))
		if err == nil && n >= 1 && n <= q.Answerable() {
			return n, nil
		}
		fmt.Fprintf(p.out, "please enter a number between 1 and %d\n", q.Answerable())
	}
}

// ParseStrategy builds a strategy from its command line name.
func ParseStrategy(name string, n int, text string, in io.Reader, out io.Writer) (Strategy, error) {
	switch strings.ToLower(name) {
	case "fixed", "":
		return Fixed(n), nil
	case "random":
		return Random(nil), nil
	case "match":
		return Match(text), nil
	case "prompt", "interactive":
		return Prompt(in, out), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}
