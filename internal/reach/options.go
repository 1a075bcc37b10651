package reach

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/oracle"
	"github.com/san-kum/flowpipe/internal/templates"
)

type Options struct {
	TimeStep          float64
	InitialTime       float64
	TimeHorizon       float64
	NumberOfTimeSteps int // 0 derives the count from TimeHorizon
	Directions        templates.Config
	Solver            string
	BaseRing          string
	Verbose           int
	Workers           int
	Seed              int64

	// Logger overrides the handler chosen from Verbose.
	Logger *slog.Logger
	// Oracle overrides Solver.
	Oracle convex.Oracle
}

func DefaultOptions() Options {
	return Options{
		TimeStep:    0.01,
		InitialTime: 0,
		TimeHorizon: 1,
		Directions:  templates.DefaultConfig(),
		Solver:      oracle.DefaultSolver,
		BaseRing:    string(convex.RingRational),
	}
}

// Steps returns N, either given explicitly or ceil(TimeHorizon/TimeStep).
func (o Options) Steps() (int, error) {
	if o.TimeStep <= 0 || math.IsNaN(o.TimeStep) || math.IsInf(o.TimeStep, 0) {
		return 0, fmt.Errorf("time step must be positive, got %v: %w", o.TimeStep, dynamo.ErrInvalidInput)
	}
	if o.NumberOfTimeSteps < 0 {
		return 0, fmt.Errorf("number of time steps must be at least 1, got %d: %w", o.NumberOfTimeSteps, dynamo.ErrInvalidInput)
	}
	if o.NumberOfTimeSteps > 0 {
		return o.NumberOfTimeSteps, nil
	}

	q := o.TimeHorizon / o.TimeStep
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, fmt.Errorf("time horizon %v: %w", o.TimeHorizon, dynamo.ErrInvalidInput)
	}
	// 1/0.1 style quotients land a few ulps above the integer.
	if r := math.Round(q); math.Abs(q-r) < 1e-9 {
		q = r
	}
	n := int(math.Ceil(q))
	if n < 1 {
		return 0, fmt.Errorf("time horizon %v yields %d steps: %w", o.TimeHorizon, n, dynamo.ErrInvalidInput)
	}
	return n, nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

func (o Options) oracle() (convex.Oracle, error) {
	if o.Oracle != nil {
		return o.Oracle, nil
	}
	return oracle.Lookup(o.Solver)
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return NewLogger(os.Stderr, o.Verbose)
}

// NewLogger maps a verbosity count to a text logger: 0 discards, 1 logs at
// Info, 2 and above at Debug.
func NewLogger(w io.Writer, verbose int) *slog.Logger {
	if verbose <= 0 {
		return slog.New(slog.DiscardHandler)
	}
	level := slog.LevelInfo
	if verbose > 1 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
