package capture

import (
	"errors"
	"testing"
	"time"
)

func TestCircularBuffer_WriteWraps(t *testing.T) {
	b := NewCircularBuffer(4, 1, 100, true)

	if n := b.Write([]float32{1, 2, 3}); n != 3 {
		t.Fatalf("expected 3 frames written, got %d", n)
	}
	if pos := b.Position(); pos != 3 {
		t.Errorf("expected position 3, got %d", pos)
	}

	b.Write([]float32{4, 5})
	if pos := b.Position(); pos != 1 {
		t.Errorf("expected position 1 after wrap, got %d", pos)
	}

	dst := make([]float32, 4)
	if err := b.GetData(dst, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{5, 2, 3, 4}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], dst[i])
		}
	}
}

func TestCircularBuffer_NoLoopStopsWhenFull(t *testing.T) {
	b := NewCircularBuffer(3, 1, 100, false)

	if n := b.Write([]float32{1, 2, 3, 4, 5}); n != 3 {
		t.Errorf("expected 3 frames written, got %d", n)
	}
	if pos := b.Position(); pos != 3 {
		t.Errorf("expected position to rest at capacity, got %d", pos)
	}
}

func TestCircularBuffer_GetDataWrapsAroundEnd(t *testing.T) {
	b := NewCircularBuffer(4, 1, 100, true)
	b.Write([]float32{1, 2, 3, 4})

	dst := make([]float32, 3)
	if err := b.GetData(dst, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{3, 4, 1}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], dst[i])
		}
	}
}

func TestCircularBuffer_Stereo(t *testing.T) {
	b := NewCircularBuffer(2, 2, 100, true)
	b.Write([]float32{0.1, -0.1, 0.2, -0.2})

	dst := make([]float32, 2)
	if err := b.GetData(dst, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst[0] != 0.2 || dst[1] != -0.2 {
		t.Errorf("expected second frame [0.2 -0.2], got %v", dst)
	}
}

func TestCircularBuffer_Errors(t *testing.T) {
	b := NewCircularBuffer(4, 1, 100, true)

	if err := b.GetData(make([]float32, 1), 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	b.Close()
	if err := b.GetData(make([]float32, 1), 0); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("expected ErrNotCapturing, got %v", err)
	}
	if n := b.Write([]float32{1}); n != 0 {
		t.Errorf("expected closed buffer to reject writes, got %d", n)
	}
}

func TestSimDevice_Lifecycle(t *testing.T) {
	d := NewSimDevice(440, 0.5)
	d.Tick = time.Millisecond

	buf, err := d.Start("mic", true, 1, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Frames() != 1000 {
		t.Errorf("expected 1000 frames, got %d", buf.Frames())
	}
	if !d.IsCapturing("mic") {
		t.Error("expected device to be capturing")
	}

	if _, err := d.Start("mic", true, 1, 1000); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("expected ErrAlreadyCapturing, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.WritePosition("mic") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.WritePosition("mic") == 0 {
		t.Error("expected write head to advance")
	}

	if err := d.Stop("mic"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Stop("mic"); err != nil {
		t.Errorf("expected second stop to be a no-op, got %v", err)
	}
	if d.IsCapturing("mic") {
		t.Error("expected device to be stopped")
	}
	if err := buf.GetData(make([]float32, 1), 0); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("expected reads after stop to fail, got %v", err)
	}
}
