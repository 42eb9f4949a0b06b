package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/pagesettle/internal/activity"
)

// fakeInstaller records install calls and answers per mechanism.
type fakeInstaller struct {
	absent map[string]bool
	fail   map[string]error
	calls  []string
}

func (f *fakeInstaller) install(_ context.Context, mechanism, _ string) (bool, error) {
	f.calls = append(f.calls, mechanism)
	if err := f.fail[mechanism]; err != nil {
		return false, err
	}
	return !f.absent[mechanism], nil
}

func installedPage(t *testing.T, inst *fakeInstaller) *pageContext {
	t.Helper()
	pc := newPageContext(inst.install, zerolog.Nop())
	require.True(t, activity.Install(context.Background(), pc))
	return pc
}

func emit(t *testing.T, pc *pageContext, ev shimEvent) {
	t.Helper()
	if ev.Gen == "" {
		ev.Gen = pc.gen
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	pc.dispatch(string(data))
}

func pendingOf(t *testing.T, pc *pageContext) int {
	t.Helper()
	st, ok := pc.ActivitySlot().Snapshot()
	require.True(t, ok)
	return st.Pending
}

func strPtr(s string) *string { return &s }

func TestPageContextInstallsEveryMechanism(t *testing.T) {
	t.Parallel()
	inst := &fakeInstaller{}
	pc := installedPage(t, inst)

	st, _ := pc.ActivitySlot().Snapshot()
	assert.True(t, st.FetchIntercepted)
	assert.True(t, st.RequestIntercepted)
	assert.True(t, st.ObserverActive)
	assert.ElementsMatch(t, []string{"fetch", "xhr", "observer"}, inst.calls)
}

func TestPageContextMechanismFailuresAreIndependent(t *testing.T) {
	t.Parallel()
	inst := &fakeInstaller{
		absent: map[string]bool{activity.MechanismXHR: true},
		fail:   map[string]error{activity.MechanismObserver: ErrShimUnavailable},
	}
	pc := installedPage(t, inst)

	st, _ := pc.ActivitySlot().Snapshot()
	assert.True(t, st.FetchIntercepted)
	assert.False(t, st.RequestIntercepted)
	assert.False(t, st.ObserverActive)

	// Events for mechanisms that failed to install are ignored.
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x1", Method: "GET", URL: "/a"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "x1"})
	assert.Equal(t, 0, pendingOf(t, pc))
}

func TestPageContextFetchLifecycle(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})

	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseStart, ID: "f1", Method: "GET", URL: "/api"})
	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseStart, ID: "f2", Method: "POST", URL: "/api"})
	assert.Equal(t, 2, pendingOf(t, pc))

	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseSettle, ID: "f1", Status: 200})
	assert.Equal(t, 1, pendingOf(t, pc))

	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseSettle, ID: "f2", Error: "TypeError: Failed to fetch"})
	assert.Equal(t, 0, pendingOf(t, pc))

	// Duplicate and unknown settles change nothing.
	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseSettle, ID: "f2"})
	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseSettle, ID: "nope"})
	assert.Equal(t, 0, pendingOf(t, pc))
}

func TestPageContextXHRLifecycle(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x1", Method: "GET", URL: "/data"})
	assert.Equal(t, 0, pendingOf(t, pc), "open alone is not pending")

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "x1"})
	assert.Equal(t, 1, pendingOf(t, pc))

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseLoadEnd, ID: "x1"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseLoadEnd, ID: "x1"})
	assert.Equal(t, 0, pendingOf(t, pc))
}

func TestPageContextXHRReopenFinishesEarlierRequest(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})

	// Opened and reopened before sending.
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x1", Method: "GET", URL: "/a"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x2", Prev: "x1", Method: "GET", URL: "/b"})
	assert.NotContains(t, pc.xhrs, "x1")

	// Reopened while in flight: the browser aborts without a load end.
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "x2"})
	assert.Equal(t, 1, pendingOf(t, pc))
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x3", Prev: "x2", Method: "GET", URL: "/c"})
	assert.Equal(t, 0, pendingOf(t, pc))
	assert.NotContains(t, pc.xhrs, "x2")

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "x3"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseLoadEnd, ID: "x3"})
	assert.Equal(t, 0, pendingOf(t, pc))
	assert.Empty(t, pc.xhrs)
}

func TestPageContextForgetsNeverSentXHRs(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "inflight", Method: "GET", URL: "/slow"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "inflight"})
	for i := range maxUnsentXHRs + 10 {
		emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: fmt.Sprintf("idle-%d", i), Method: "GET", URL: "/"})
	}

	assert.LessOrEqual(t, len(pc.xhrs), maxUnsentXHRs+1)
	assert.LessOrEqual(t, len(pc.opened), maxUnsentXHRs)
	assert.Contains(t, pc.xhrs, "inflight", "sent requests wait for their load end")
	assert.Equal(t, 1, pendingOf(t, pc))

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseLoadEnd, ID: "inflight"})
	assert.Equal(t, 0, pendingOf(t, pc))
}

func TestPageContextXHRLongPollingNotCounted(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x1", Method: "POST", URL: "/cometd"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "x1",
		Body: strPtr(`[{"channel":"/meta/connect","connectionType":"long-polling"}]`)})
	assert.Equal(t, 0, pendingOf(t, pc))

	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseOpen, ID: "x2", Method: "POST", URL: "/save"})
	emit(t, pc, shimEvent{Kind: kindXHR, Phase: phaseSend, ID: "x2", Body: strPtr(`{"name":"x"}`)})
	assert.Equal(t, 1, pendingOf(t, pc))
}

func TestPageContextMutationBatches(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})
	before, _ := pc.ActivitySlot().Snapshot()

	emit(t, pc, shimEvent{Kind: kindMutation, Records: 25})

	after, _ := pc.ActivitySlot().Snapshot()
	assert.False(t, after.LastMutation.Before(before.LastMutation))
	assert.Equal(t, 0, after.Pending)
}

func TestPageContextDropsForeignAndBrokenPayloads(t *testing.T) {
	t.Parallel()
	pc := installedPage(t, &fakeInstaller{})

	emit(t, pc, shimEvent{Gen: "previous-document", Kind: kindFetch, Phase: phaseStart, ID: "f1"})
	assert.Equal(t, 0, pendingOf(t, pc))

	assert.NotPanics(t, func() {
		pc.dispatch("not json")
		pc.dispatch(`{"gen":"` + pc.gen + `"}`)
		pc.dispatch(`{"gen":"` + pc.gen + `","kind":"unknown"}`)
	})
	assert.Equal(t, 0, pendingOf(t, pc))
}

func TestPageContextEventsBeforeInstallAreIgnored(t *testing.T) {
	t.Parallel()
	pc := newPageContext((&fakeInstaller{}).install, zerolog.Nop())

	emit(t, pc, shimEvent{Kind: kindFetch, Phase: phaseStart, ID: "f1"})
	emit(t, pc, shimEvent{Kind: kindMutation, Records: 1})

	_, ok := pc.ActivitySlot().Snapshot()
	assert.False(t, ok)
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	ev, err := decodeEvent(`{"gen":"g","kind":"xhr","phase":"send","id":"x9","body":null}`)
	require.NoError(t, err)
	assert.Equal(t, "x9", ev.ID)
	assert.Nil(t, ev.body())

	ev, err = decodeEvent(`{"gen":"g","kind":"xhr","phase":"send","id":"x9","body":"a=1"}`)
	require.NoError(t, err)
	assert.Equal(t, "a=1", ev.body())

	_, err = decodeEvent(`{"gen":"g"}`)
	assert.Error(t, err)

	_, err = decodeEvent(`[`)
	var syntax *json.SyntaxError
	assert.True(t, errors.As(err, &syntax))
}
