package media

import (
	"sync"
	"testing"

	"github.com/zsiec/ccx"
)

func TestQueueFIFOPerStream(t *testing.T) {
	t.Parallel()

	q := &SampleQueue{}
	vp := &VideoPool{}
	ap := &AudioPool{}

	for i := 0; i < 3; i++ {
		v := vp.Acquire()
		v.Width = i
		q.AddVideo(v)

		a := ap.Acquire()
		a.SampleRate = i
		q.AddAudio(a)
	}

	for i := 0; i < 3; i++ {
		v := q.PopVideo()
		if v == nil || v.Width != i {
			t.Fatalf("video pop %d: got %+v", i, v)
		}
		v.Release()

		a := q.PopAudio()
		if a == nil || a.SampleRate != i {
			t.Fatalf("audio pop %d: got %+v", i, a)
		}
		a.Release()
	}

	if q.PopVideo() != nil || q.PopAudio() != nil || q.PopCaption() != nil {
		t.Fatal("expected empty queues to pop nil")
	}
}

func TestQueueCaptions(t *testing.T) {
	t.Parallel()

	q := &SampleQueue{}
	q.AddCaption(&ccx.CaptionFrame{Text: "first"})
	q.AddCaption(&ccx.CaptionFrame{Text: "second"})

	if got := q.NumCaptionFrames(); got != 2 {
		t.Fatalf("caption depth: got %d, want 2", got)
	}
	if f := q.PopCaption(); f == nil || f.Text != "first" {
		t.Fatalf("first pop: got %+v", f)
	}
	if f := q.PopCaption(); f == nil || f.Text != "second" {
		t.Fatalf("second pop: got %+v", f)
	}
}

func TestQueueFlushReleasesSamples(t *testing.T) {
	t.Parallel()

	q := &SampleQueue{}
	vp := &VideoPool{}

	q.AddVideo(vp.Acquire())
	q.AddVideo(vp.Acquire())
	q.Flush()

	if got := q.NumVideoSamples(); got != 0 {
		t.Fatalf("video depth after flush: got %d, want 0", got)
	}
	// The released samples are back in the free list.
	s := vp.Acquire()
	if s == nil {
		t.Fatal("expected a recycled sample")
	}
	vp.mu.Lock()
	remaining := len(vp.free)
	vp.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("free list after one re-acquire: got %d, want 1", remaining)
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	const total = 500
	q := &SampleQueue{}
	vp := &VideoPool{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.AddVideo(vp.Acquire())
		}
	}()

	popped := 0
	for popped < total {
		if s := q.PopVideo(); s != nil {
			s.Release()
			popped++
		}
	}
	wg.Wait()

	if got := q.NumVideoSamples(); got != 0 {
		t.Fatalf("depth after drain: got %d, want 0", got)
	}
}
