package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
)

type sentMessage struct {
	QueueURL string
	Body     []byte
}

type fakeQueue struct {
	mu        sync.Mutex
	sent      []sentMessage
	extends   []string
	deletes   []string
	sendErr   error
	extendErr error
	deleteErr error
}

func (q *fakeQueue) CreateOrOpen(_ context.Context, name string) (ports.QueueHandle, error) {
	return ports.QueueHandle{Name: name, URL: "redisq://" + name}, nil
}

func (q *fakeQueue) Receive(context.Context, ports.QueueHandle, int, time.Duration, time.Duration) ([]ports.Message, error) {
	return nil, nil
}

func (q *fakeQueue) ExtendVisibility(_ context.Context, _ ports.QueueHandle, receipt string, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.extends = append(q.extends, receipt)
	return q.extendErr
}

func (q *fakeQueue) Delete(_ context.Context, _ ports.QueueHandle, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deletes = append(q.deletes, receipt)
	return nil
}

func (q *fakeQueue) Send(_ context.Context, queueURL string, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sendErr != nil {
		return "", q.sendErr
	}
	q.sent = append(q.sent, sentMessage{QueueURL: queueURL, Body: append([]byte(nil), body...)})
	return fmt.Sprintf("status-%d", len(q.sent)), nil
}

func (q *fakeQueue) snapshot() (sent []sentMessage, extends, deletes []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]sentMessage(nil), q.sent...), append([]string(nil), q.extends...), append([]string(nil), q.deletes...)
}

type putCall struct {
	In   ports.PutObjectInput
	Body []byte
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	puts    []putCall
	getErr  error
	putErr  error
	onPut   func() // runs before the put returns
	onGet   func() // runs before the get returns
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Provider() string { return "fake" }

func (s *fakeStorage) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, string, int64, error) {
	if s.onGet != nil {
		s.onGet()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, "", 0, s.getErr
	}
	b, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, "", 0, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(b)), "application/json", int64(len(b)), nil
}

func (s *fakeStorage) PutObject(_ context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if s.onPut != nil {
		s.onPut()
	}
	body, _ := io.ReadAll(in.Reader)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, putCall{In: in, Body: body})
	if s.putErr != nil {
		return ports.PutObjectOutput{}, s.putErr
	}
	s.objects[in.Bucket+"/"+in.Key] = body
	return ports.PutObjectOutput{Key: in.Key, Size: int64(len(body))}, nil
}

type fakeRenderer struct {
	mu     sync.Mutex
	scenes [][]byte
	render func(scene []byte) ([]byte, error)
}

func (r *fakeRenderer) Render(_ context.Context, scene []byte) ([]byte, error) {
	r.mu.Lock()
	r.scenes = append(r.scenes, append([]byte(nil), scene...))
	r.mu.Unlock()
	if r.render != nil {
		return r.render(scene)
	}
	return append([]byte("IMG:"), scene...), nil
}

func (r *fakeRenderer) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scenes)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) OnTerminal(_ context.Context, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w io.Writer) *logger.Logger {
	return logger.New(logger.Config{Level: "debug", Format: "json", Output: w})
}
