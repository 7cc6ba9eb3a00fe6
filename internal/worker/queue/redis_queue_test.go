package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"rendernode/internal/pkg/errors"
	"rendernode/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T) (*RedisQueue, *fakeClock, ports.QueueHandle) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(rdb, Options{PollInterval: 10 * time.Millisecond, Now: clock.Now})

	h, err := q.CreateOrOpen(context.Background(), "render-jobs")
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	return q, clock, h
}

func TestCreateOrOpen(t *testing.T) {
	q, _, h := newTestQueue(t)

	if h.URL != "redisq://render-jobs" {
		t.Errorf("unexpected URL %q", h.URL)
	}

	again, err := q.CreateOrOpen(context.Background(), "render-jobs")
	if err != nil {
		t.Fatalf("second CreateOrOpen: %v", err)
	}
	if again != h {
		t.Errorf("expected same handle, got %+v", again)
	}

	if _, err := q.CreateOrOpen(context.Background(), "bad/name"); !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSendReceiveDelete(t *testing.T) {
	q, _, h := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Send(ctx, h.URL, []byte(`{"SceneKey":"a"}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs, err := q.Receive(ctx, h, 10, time.Minute, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.ID != id || string(m.Body) != `{"SceneKey":"a"}` || m.ReceiveCount != 1 {
		t.Errorf("unexpected message %+v", m)
	}

	// Leased messages are hidden.
	if more, _ := q.Receive(ctx, h, 10, time.Minute, 0); len(more) != 0 {
		t.Errorf("expected leased message to be invisible, got %d", len(more))
	}

	if err := q.Delete(ctx, h, m.ReceiptHandle); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	pending, inflight, err := q.Depth(ctx, h)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if pending != 0 || inflight != 0 {
		t.Errorf("expected empty queue, got pending=%d inflight=%d", pending, inflight)
	}
}

func TestReceiveRespectsMax(t *testing.T) {
	q, _, h := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := q.Send(ctx, h.URL, []byte("job")); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	msgs, err := q.Receive(ctx, h, 3, time.Minute, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	pending, inflight, _ := q.Depth(ctx, h)
	if pending != 2 || inflight != 3 {
		t.Errorf("expected pending=2 inflight=3, got %d/%d", pending, inflight)
	}
}

func TestExpiredLeaseIsRedelivered(t *testing.T) {
	q, clock, h := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Send(ctx, h.URL, []byte("job")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first, _ := q.Receive(ctx, h, 1, time.Minute, 0)
	if len(first) != 1 {
		t.Fatalf("expected first delivery")
	}

	clock.Advance(61 * time.Second)

	second, err := q.Receive(ctx, h, 1, time.Minute, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected redelivery after lease expiry")
	}
	if second[0].ID != first[0].ID || second[0].ReceiveCount != 2 {
		t.Errorf("unexpected redelivery %+v", second[0])
	}
	if second[0].ReceiptHandle == first[0].ReceiptHandle {
		t.Error("expected a fresh receipt on redelivery")
	}

	// The stale receipt can no longer extend or delete.
	if err := q.ExtendVisibility(ctx, h, first[0].ReceiptHandle, time.Minute); !errors.IsCode(err, errors.CodeLeaseLost) {
		t.Errorf("expected LEASE_LOST on stale extend, got %v", err)
	}
	if err := q.Delete(ctx, h, first[0].ReceiptHandle); !errors.IsCode(err, errors.CodeLeaseLost) {
		t.Errorf("expected LEASE_LOST on stale delete, got %v", err)
	}
	if err := q.Delete(ctx, h, second[0].ReceiptHandle); err != nil {
		t.Errorf("current receipt delete: %v", err)
	}
}

func TestExtendVisibilityKeepsLease(t *testing.T) {
	q, clock, h := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Send(ctx, h.URL, []byte("job")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs, _ := q.Receive(ctx, h, 1, time.Minute, 0)
	if len(msgs) != 1 {
		t.Fatal("expected a message")
	}

	// Renew every 30s with a 60s lease, as the heartbeat does.
	for i := 0; i < 4; i++ {
		clock.Advance(30 * time.Second)
		if err := q.ExtendVisibility(ctx, h, msgs[0].ReceiptHandle, time.Minute); err != nil {
			t.Fatalf("extend %d: %v", i, err)
		}
		if again, _ := q.Receive(ctx, h, 1, time.Minute, 0); len(again) != 0 {
			t.Fatalf("message redelivered while lease was renewed (tick %d)", i)
		}
	}
}

func TestReceiveLongPoll(t *testing.T) {
	q, _, h := newTestQueue(t)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = q.Send(ctx, h.URL, []byte("late"))
	}()

	msgs, err := q.Receive(ctx, h, 1, time.Minute, 2*time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Body) != "late" {
		t.Fatalf("expected long poll to pick up late message, got %+v", msgs)
	}
}

func TestReceiveWaitElapses(t *testing.T) {
	q, _, h := newTestQueue(t)

	start := time.Now()
	msgs, err := q.Receive(context.Background(), h, 1, time.Minute, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("expected Receive to wait before returning empty")
	}
}

func TestReceiveCanceled(t *testing.T) {
	q, _, h := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := q.Receive(ctx, h, 1, time.Minute, 5*time.Second)
	if !errors.IsCode(err, errors.CodeQueue) {
		t.Fatalf("expected QUEUE_ERROR on cancel, got %v", err)
	}
}

func TestSendToOtherQueue(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Send(ctx, "redisq://status", []byte("update")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	status, err := q.CreateOrOpen(ctx, "status")
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	msgs, _ := q.Receive(ctx, status, 10, time.Minute, 0)
	if len(msgs) != 1 || string(msgs[0].Body) != "update" {
		t.Fatalf("expected status update, got %+v", msgs)
	}
}

func TestParseQueueURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"redisq://status", "status", false},
		{"redisq://", "", true},
		{"https://sqs.example.com/123/status", "", true},
		{"redisq://a/b", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ParseQueueURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMalformedReceipt(t *testing.T) {
	q, _, h := newTestQueue(t)

	if err := q.Delete(context.Background(), h, "no-dot"); !errors.IsCode(err, errors.CodeQueue) {
		t.Errorf("expected QUEUE_ERROR, got %v", err)
	}
}
