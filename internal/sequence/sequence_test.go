package sequence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/keel/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls = append(tr.calls, name)
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

func step(tr *trace, name string, err error) domain.Action {
	return func(ctx context.Context) error {
		tr.add(name)
		return err
	}
}

func TestRunSync_ExecutesInOrder(t *testing.T) {
	tr := &trace{}
	err := RunSync(context.Background(), []domain.Action{
		step(tr, "a", nil),
		step(tr, "b", nil),
		step(tr, "c", nil),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tr.get())
}

func TestRunSync_StopsAtFirstFailure(t *testing.T) {
	tr := &trace{}
	boom := errors.New("boom")

	err := RunSync(context.Background(), []domain.Action{
		step(tr, "a", nil),
		step(tr, "b", boom),
		step(tr, "c", nil),
	}, ForPhase(domain.PhaseLaunch))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var actionErr *domain.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, domain.PhaseLaunch, actionErr.Phase)
	assert.Equal(t, 1, actionErr.Index)
	assert.Equal(t, []string{"a", "b"}, tr.get())
}

func TestRunSync_EmptySequenceSucceeds(t *testing.T) {
	assert.NoError(t, RunSync(context.Background(), nil))
}

func TestRunSync_ContinueOnErrorRunsEverything(t *testing.T) {
	tr := &trace{}
	first := errors.New("first")
	second := errors.New("second")

	err := RunSync(context.Background(), []domain.Action{
		step(tr, "a", first),
		step(tr, "b", nil),
		step(tr, "c", second),
	}, ContinueOnError(), ForPhase(domain.PhaseShutdown))

	assert.Equal(t, []string{"a", "b", "c"}, tr.get())
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestRunSync_NoOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	action := func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}

	err := <-Run(context.Background(), []domain.Action{action, action, action, action})
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestRunSync_PanicBecomesFault(t *testing.T) {
	tr := &trace{}
	err := RunSync(context.Background(), []domain.Action{
		func(ctx context.Context) error { panic("kaboom") },
		step(tr, "never", nil),
	})

	assert.ErrorIs(t, err, domain.ErrFault)
	assert.ErrorIs(t, err, domain.ErrAction)

	var fault *domain.FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "kaboom", fault.Value)
	assert.NotEmpty(t, fault.Stack)
	assert.Empty(t, tr.get())
}

func TestRunSync_CancelledContextAbandonsRemaining(t *testing.T) {
	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())

	err := RunSync(ctx, []domain.Action{
		func(ctx context.Context) error {
			tr.add("a")
			cancel()
			return nil
		},
		step(tr, "b", nil),
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, tr.get())
}

func TestRun_DeliversExactlyOneResult(t *testing.T) {
	done := Run(context.Background(), []domain.Action{step(&trace{}, "a", nil)})

	select {
	case err, ok := <-done:
		assert.True(t, ok)
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner hung")
	}

	_, ok := <-done
	assert.False(t, ok, "channel must be closed after the terminal value")
}

func TestRun_ObserverSeesEveryAction(t *testing.T) {
	var events []domain.ActionEvent
	boom := errors.New("boom")

	err := RunSync(context.Background(), []domain.Action{
		step(&trace{}, "a", nil),
		step(&trace{}, "b", boom),
	}, ForPhase(domain.PhaseRun), WithObserver(func(ctx context.Context, evt *domain.ActionEvent) {
		events = append(events, *evt)
	}))

	require.Error(t, err)
	require.Len(t, events, 2)
	assert.NoError(t, events[0].Err)
	assert.ErrorIs(t, events[1].Err, boom)
	assert.Equal(t, domain.PhaseRun, events[1].Phase)
}
