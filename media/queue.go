package media

import (
	"sync"

	"github.com/zsiec/ccx"
)

// SampleQueue is the bounded holding area between the capture thread
// (producer) and the consumer tick (drain). Each stream is an independent
// FIFO; there is no ordering guarantee between streams. All methods are
// safe for concurrent use.
//
// The queue itself does not enforce limits: the capture callback refuses
// to enqueue past its tolerated ceiling, and the tick driver prunes any
// residual excess once per tick.
type SampleQueue struct {
	mu       sync.Mutex
	audio    []*AudioSample
	video    []*VideoSample
	captions []*ccx.CaptionFrame
}

// AddAudio appends an audio sample in arrival order.
func (q *SampleQueue) AddAudio(s *AudioSample) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = append(q.audio, s)
}

// PopAudio removes and returns the oldest audio sample, or nil if empty.
// The caller takes over the sample's reference.
func (q *SampleQueue) PopAudio() *AudioSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.audio) == 0 {
		return nil
	}
	s := q.audio[0]
	q.audio[0] = nil
	q.audio = q.audio[1:]
	return s
}

// NumAudioSamples returns the current audio queue depth.
func (q *SampleQueue) NumAudioSamples() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.audio)
}

// AddVideo appends a video sample in arrival order.
func (q *SampleQueue) AddVideo(s *VideoSample) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.video = append(q.video, s)
}

// PopVideo removes and returns the oldest video sample, or nil if empty.
// The caller takes over the sample's reference.
func (q *SampleQueue) PopVideo() *VideoSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.video) == 0 {
		return nil
	}
	s := q.video[0]
	q.video[0] = nil
	q.video = q.video[1:]
	return s
}

// NumVideoSamples returns the current video queue depth.
func (q *SampleQueue) NumVideoSamples() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.video)
}

// AddCaption appends a decoded caption frame in arrival order.
func (q *SampleQueue) AddCaption(f *ccx.CaptionFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.captions = append(q.captions, f)
}

// PopCaption removes and returns the oldest caption frame, or nil if empty.
func (q *SampleQueue) PopCaption() *ccx.CaptionFrame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.captions) == 0 {
		return nil
	}
	f := q.captions[0]
	q.captions[0] = nil
	q.captions = q.captions[1:]
	return f
}

// NumCaptionFrames returns the current caption queue depth.
func (q *SampleQueue) NumCaptionFrames() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.captions)
}

// Flush releases every queued sample and empties all streams. Called on
// session close before the pools are reset.
func (q *SampleQueue) Flush() {
	q.mu.Lock()
	audio, video := q.audio, q.video
	q.audio, q.video, q.captions = nil, nil, nil
	q.mu.Unlock()

	for _, s := range audio {
		s.Release()
	}
	for _, s := range video {
		s.Release()
	}
}
