package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vox-chat/internal/observability"
	"vox-chat/pkg/logger"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

type journal struct {
	mu  sync.Mutex
	ops []string
}

func (j *journal) job(op string, err error) func(context.Context) error {
	return func(context.Context) error {
		j.mu.Lock()
		defer j.mu.Unlock()
		j.ops = append(j.ops, op)
		return err
	}
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ops...)
}

func TestProcessor_RunsInOrderAndDrains(t *testing.T) {
	p := NewProcessor(16, time.Second, time.Millisecond, 0, WithLogger(logger.Wrap(zaptest.NewLogger(t))))
	j := &journal{}
	for _, op := range []string{"a", "b", "c"} {
		if !p.Enqueue(op, j.job(op, nil)) {
			t.Fatalf("Enqueue(%s) = false", op)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	if diff := cmp.Diff([]string{"a", "b", "c"}, j.list()); diff != "" {
		t.Errorf("executed jobs (-want +got):\n%s", diff)
	}
}

func TestProcessor_EnqueueDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	p := NewProcessor(1, time.Second, time.Millisecond, 0, WithMetrics(metrics))
	j := &journal{}

	if !p.Enqueue("first", j.job("first", nil)) {
		t.Fatal("first Enqueue() = false")
	}
	if p.Enqueue("second", j.job("second", nil)) {
		t.Fatal("second Enqueue() = true, want drop")
	}
	if got := testutil.ToFloat64(metrics.PersistenceCounter.WithLabelValues("second", "dropped")); got != 1 {
		t.Errorf("dropped counter = %v, want 1", got)
	}
}

func TestProcessor_RetriesThenGivesUp(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	p := NewProcessor(4, time.Second, time.Millisecond, 2,
		WithMetrics(metrics),
		WithLogger(logger.Wrap(zaptest.NewLogger(t))),
	)
	j := &journal{}
	p.Enqueue("save_message", j.job("save_message", errors.New("database is locked")))
	p.Enqueue("delete_message", j.job("delete_message", nil))

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(j.list()) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("jobs ran %v, want three attempts then the next job", j.list())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	p.Wait()

	want := []string{"save_message", "save_message", "save_message", "delete_message"}
	if diff := cmp.Diff(want, j.list()); diff != "" {
		t.Errorf("attempts (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(metrics.PersistenceCounter.WithLabelValues("save_message", "error")); got != 3 {
		t.Errorf("error counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.PersistenceCounter.WithLabelValues("delete_message", "success")); got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
}

func TestProcessor_JobsGetDeadline(t *testing.T) {
	p := NewProcessor(1, 50*time.Millisecond, time.Millisecond, 0)
	var hasDeadline bool
	p.Enqueue("touch_user", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	if !hasDeadline {
		t.Error("job context has no deadline")
	}
}
