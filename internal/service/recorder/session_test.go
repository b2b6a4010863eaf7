package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-command-pipeline/internal/capture/mock"
)

// chunkCollector records chunks handed to the sink.
type chunkCollector struct {
	mu     sync.Mutex
	chunks []AudioChunk
}

func (c *chunkCollector) sink(ctx context.Context, chunk AudioChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
	return nil
}

func (c *chunkCollector) get() []AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AudioChunk{}, c.chunks...)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for session to end")
	}
}

var testConfig = SessionConfig{DeviceID: "mic", BufferSeconds: 1, SampleRateHz: 1000}

func TestSession_EmitsAlternatingHalves(t *testing.T) {
	device := mock.New(500, 0, 600, 100)
	rec := New(device)
	col := &chunkCollector{}

	s, err := rec.Start(context.Background(), testConfig, col.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitDone(t, s)

	chunks := col.get()
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	// the mock fills sample i with i/1000
	wantFirst := []float32{0, 0.5, 0, 0.5}
	for i, c := range chunks {
		if c.Len() != 500 {
			t.Errorf("chunk %d: expected 500 samples, got %d", i, c.Len())
		}
		if got := c.Samples()[0]; got != wantFirst[i] {
			t.Errorf("chunk %d: expected first sample %v, got %v", i, wantFirst[i], got)
		}
		if c.SampleRate() != 1000 {
			t.Errorf("chunk %d: expected sample rate 1000, got %d", i, c.SampleRate())
		}
	}

	// script exhausted reads as a lost device
	if !errors.Is(s.Err(), ErrDeviceDisconnected) {
		t.Errorf("expected ErrDeviceDisconnected, got %v", s.Err())
	}
	if !device.Released() {
		t.Error("expected device to be released")
	}
	if _, ok := rec.Session("mic"); ok {
		t.Error("expected session to be removed from recorder")
	}
}

func TestSession_DisconnectBeforeFirstChunk(t *testing.T) {
	device := mock.New()
	rec := New(device)
	col := &chunkCollector{}

	s, err := rec.Start(context.Background(), testConfig, col.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitDone(t, s)

	if !errors.Is(s.Err(), ErrDeviceDisconnected) {
		t.Errorf("expected ErrDeviceDisconnected, got %v", s.Err())
	}
	if n := len(col.get()); n != 0 {
		t.Errorf("expected no chunks, got %d", n)
	}
	if !device.Released() {
		t.Error("expected device handle to be released")
	}
	if s.Active() {
		t.Error("expected session to be inactive")
	}
}

func TestSession_WritePositionBeyondCapacity(t *testing.T) {
	device := mock.New(1001, 0)
	rec := New(device)
	col := &chunkCollector{}

	s, err := rec.Start(context.Background(), testConfig, col.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitDone(t, s)

	if !errors.Is(s.Err(), ErrDeviceDisconnected) {
		t.Errorf("expected ErrDeviceDisconnected, got %v", s.Err())
	}
	if n := len(col.get()); n != 0 {
		t.Errorf("expected no chunks, got %d", n)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	// position 100 makes the loop wait 400ms for the midpoint
	device := mock.New(100, 100)
	rec := New(device)
	col := &chunkCollector{}

	s, err := rec.Start(context.Background(), testConfig, col.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("unexpected error on first stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("unexpected error on second stop: %v", err)
	}

	if s.Active() {
		t.Error("expected session to be inactive")
	}
	if s.Err() != nil {
		t.Errorf("expected clean stop, got %v", s.Err())
	}
	if device.StopCalls() != 1 {
		t.Errorf("expected device stopped once, got %d", device.StopCalls())
	}
	if !device.Released() {
		t.Error("expected device to be released")
	}
}

func TestSession_NoChunkAfterStop(t *testing.T) {
	device := mock.New(500, 0, 500, 0, 500, 0)
	rec := New(device)

	var mu sync.Mutex
	calls := 0
	entered := make(chan struct{})
	sink := func(ctx context.Context, chunk AudioChunk) error {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	s, err := rec.Start(context.Background(), testConfig, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-entered
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly 1 sink call, got %d", calls)
	}
	if s.Err() != nil {
		t.Errorf("expected clean stop, got %v", s.Err())
	}
}

func TestRecorder_OneSessionPerDevice(t *testing.T) {
	device := mock.New(100, 100)
	rec := New(device)
	col := &chunkCollector{}

	s, err := rec.Start(context.Background(), testConfig, col.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := rec.Start(context.Background(), testConfig, col.sink); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("expected ErrDeviceBusy, got %v", err)
	}
	if device.StartCalls() != 1 {
		t.Errorf("expected device started once, got %d", device.StartCalls())
	}

	s.Stop()

	s2, err := rec.Start(context.Background(), testConfig, col.sink)
	if err != nil {
		t.Fatalf("expected restart after stop to succeed, got %v", err)
	}
	if s2.ID() == s.ID() {
		t.Error("expected a new session ID")
	}
	rec.StopAll()
	if s2.Active() {
		t.Error("expected StopAll to stop the session")
	}
}

func TestRecorder_StartFailure(t *testing.T) {
	device := mock.New(0)
	device.StartErr = errors.New("no microphone")
	rec := New(device)

	if _, err := rec.Start(context.Background(), testConfig, (&chunkCollector{}).sink); err == nil {
		t.Fatal("expected start error")
	}
	if _, ok := rec.Session("mic"); ok {
		t.Error("expected no session registered after failed start")
	}
}

func TestRecorder_ContextCancelStopsSession(t *testing.T) {
	device := mock.New(100, 100)
	rec := New(device)
	ctx, cancel := context.WithCancel(context.Background())

	s, err := rec.Start(ctx, testConfig, (&chunkCollector{}).sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	waitDone(t, s)

	if s.Err() != nil {
		t.Errorf("expected clean end on cancellation, got %v", s.Err())
	}
	if !device.Released() {
		t.Error("expected device to be released")
	}
}

// cancellingDevice cancels the session context when the write head is read
// for the tick numbered cancelAt, after the loop's own cancellation check.
type cancellingDevice struct {
	*mock.Device
	cancel   context.CancelFunc
	cancelAt int

	mu    sync.Mutex
	reads int
}

func (d *cancellingDevice) WritePosition(deviceID string) int {
	d.mu.Lock()
	d.reads++
	if d.reads == d.cancelAt {
		d.cancel()
	}
	d.mu.Unlock()
	return d.Device.WritePosition(deviceID)
}

func TestSession_NoChunkOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	device := &cancellingDevice{Device: mock.New(500, 0, 500, 0), cancel: cancel, cancelAt: 2}
	rec := New(device)

	var mu sync.Mutex
	calls, stale := 0, 0
	sink := func(ctx context.Context, chunk AudioChunk) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if ctx.Err() != nil {
			stale++
		}
		return nil
	}

	s, err := rec.Start(ctx, testConfig, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected only the chunk before cancellation, got %d sink calls", calls)
	}
	if stale != 0 {
		t.Errorf("expected no chunk handed over with a cancelled context, got %d", stale)
	}
	if s.Chunks() != 1 {
		t.Errorf("expected 1 chunk counted, got %d", s.Chunks())
	}
	if !device.Released() {
		t.Error("expected device to be released")
	}
}
