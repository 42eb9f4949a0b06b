package settle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/pagesettle/internal/readiness"
	"github.com/brennhill/pagesettle/internal/settle"
)

// scriptedTarget replays reports and probe answers in order, repeating the
// last one once the script runs out.
type scriptedTarget struct {
	reports   []readiness.Report
	busy      []bool
	installOK bool

	installs   int
	classifies int
	probes     int
	quiet      time.Duration
}

func (s *scriptedTarget) Install(context.Context) bool {
	s.installs++
	return s.installOK
}

func (s *scriptedTarget) Classify(_ context.Context, quiet time.Duration) readiness.Report {
	s.quiet = quiet
	i := min(s.classifies, len(s.reports)-1)
	s.classifies++
	return s.reports[i]
}

func (s *scriptedTarget) Probe(context.Context, []string) bool {
	if len(s.busy) == 0 {
		return false
	}
	i := min(s.probes, len(s.busy)-1)
	s.probes++
	return s.busy[i]
}

var (
	notReady = readiness.Report{NetworkIdle: true, DOMQuiet: true}
	loading  = readiness.Report{DocumentReady: true, Pending: 2, DOMQuiet: true}
	churning = readiness.Report{DocumentReady: true, NetworkIdle: true}
	idle     = readiness.Report{Idle: true, DocumentReady: true, NetworkIdle: true, DOMQuiet: true}
)

func fastConfig() settle.Config {
	return settle.Config{
		Timeout:      5 * time.Second,
		PollInterval: time.Millisecond,
		Quiet:        20 * time.Millisecond,
	}
}

func wait(t *testing.T, target settle.Target, cfg settle.Config) settle.Result {
	t.Helper()
	res, err := settle.NewWaiter(target, cfg, zerolog.Nop()).Wait(context.Background())
	require.NoError(t, err)
	return res
}

func TestWaitIdleOnFirstPoll(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{idle}, installOK: true}

	res := wait(t, target, fastConfig())

	assert.Equal(t, settle.OutcomeIdle, res.Outcome)
	assert.True(t, res.Settled())
	assert.Equal(t, 1, res.Polls)
	assert.Equal(t, 1, target.installs)
	assert.Equal(t, 20*time.Millisecond, target.quiet)
	assert.Equal(t, idle, res.Last)
}

func TestWaitChecksSignalsInOrder(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{
		reports: []readiness.Report{notReady, loading, loading, idle},
		busy:    []bool{false},
	}
	cfg := fastConfig()
	cfg.SpinnerSelectors = []string{".spinner"}

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeIdle, res.Outcome)
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, 1, target.probes, "spinner is only probed once ready and network idle")
}

func TestWaitBlocksWhileSpinnerVisible(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{
		reports: []readiness.Report{idle},
		busy:    []bool{true, true, false},
	}
	cfg := fastConfig()
	cfg.SpinnerSelectors = settle.ParseSpinnerSelectors(".spinner, .loading")

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeIdle, res.Outcome)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 3, target.probes)
}

func TestWaitSkipsSpinnerWhenDisabled(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{idle}, busy: []bool{true}}
	cfg := fastConfig()
	cfg.SpinnerSelectors = settle.ParseSpinnerSelectors("off")

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeIdle, res.Outcome)
	assert.Zero(t, target.probes)
}

func TestWaitDOMQuietCapBoundsChurn(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{churning}}
	cfg := fastConfig()

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeDOMQuietCap, res.Outcome)
	assert.True(t, res.Settled())
	assert.GreaterOrEqual(t, res.Elapsed, cfg.DOMQuietCap())
	assert.Less(t, res.Elapsed, cfg.Timeout)
	assert.Greater(t, res.Polls, 1)
}

func TestWaitDOMQuietDuringPhase(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{churning, churning, idle}}
	cfg := fastConfig()
	cfg.Quiet = time.Second

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeIdle, res.Outcome)
	assert.Equal(t, 3, res.Polls)
}

func TestWaitTimeoutIsNotAnError(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{notReady}}
	cfg := fastConfig()
	cfg.Timeout = 30 * time.Millisecond

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeTimeout, res.Outcome)
	assert.False(t, res.Settled())
	assert.GreaterOrEqual(t, res.Elapsed, cfg.Timeout)
	assert.Equal(t, notReady, res.Last)
}

func TestWaitTimeoutInsideDOMQuietPhase(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{churning}}
	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.Quiet = time.Second

	res := wait(t, target, cfg)

	assert.Equal(t, settle.OutcomeTimeout, res.Outcome)
}

func TestWaitPollsEvenWhenInstallFails(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{idle}, installOK: false}

	res := wait(t, target, fastConfig())

	assert.Equal(t, settle.OutcomeIdle, res.Outcome)
	assert.Equal(t, 1, target.installs)
}

func TestWaitReturnsContextError(t *testing.T) {
	t.Parallel()
	target := &scriptedTarget{reports: []readiness.Report{loading}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := settle.NewWaiter(target, fastConfig(), zerolog.Nop()).Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDOMQuietCap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  settle.Config
		want time.Duration
	}{
		{"defaults", settle.Config{}, 600 * time.Millisecond},
		{"scaled quiet", settle.Config{Quiet: 200 * time.Millisecond}, 300 * time.Millisecond},
		{"absolute ceiling", settle.Config{Quiet: 2 * time.Second}, 1500 * time.Millisecond},
		{"custom ceiling", settle.Config{Quiet: time.Second, DOMQuietMax: 500 * time.Millisecond}, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cfg.DOMQuietCap())
		})
	}
}
