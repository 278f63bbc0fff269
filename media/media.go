// Package media defines the sample types that flow from the capture
// callback to the consumer: pooled audio and video samples, the bounded
// sample queue, timecodes, and the playback state enum.
package media

import (
	"fmt"
	"time"
)

// Default per-stream queue limits. The capture callback tolerates up to
// twice the configured limit before it starts dropping; the tick driver
// prunes back down to the limit itself.
const (
	DefaultMaxAudioFrames   = 8
	DefaultMaxVideoFrames   = 8
	DefaultMaxCaptionFrames = 30
)

// State is the playback state of a capture session. It is written by the
// capture callback and polled by the consumer tick.
type State int

// Capture session states.
const (
	StateClosed State = iota
	StatePreparing
	StatePlaying
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StatePreparing:
		return "preparing"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FrameRate is a rational video frame rate, e.g. 30000/1001.
type FrameRate struct {
	Num int
	Den int
}

// Float returns the frame rate as frames per second.
func (r FrameRate) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Interval returns the duration of a single frame.
func (r FrameRate) Interval() time.Duration {
	if r.Num == 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * float64(r.Den) / float64(r.Num))
}

func (r FrameRate) String() string {
	if r.Den == 1 {
		return fmt.Sprintf("%d fps", r.Num)
	}
	return fmt.Sprintf("%d/%d fps", r.Num, r.Den)
}

// Timecode is a decoded linear timecode. Frame rates above 30 fps are
// delivered by the driver already flattened to a linear frame count.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

// Duration converts the timecode to a time offset at the given frame rate.
func (t Timecode) Duration(rate FrameRate) time.Duration {
	d := time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute +
		time.Duration(t.Seconds)*time.Second
	return d + time.Duration(t.Frames)*rate.Interval()
}

// Next returns the timecode advanced by one frame. Seconds are not
// carried; field-two samples reuse the same second with frame+1, matching
// the driver's linear timecode convention.
func (t Timecode) Next() Timecode {
	t.Frames++
	return t
}

func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
}

// SampleFormat identifies the pixel layout of a video sample buffer.
type SampleFormat int

// Supported capture pixel layouts.
const (
	FormatUYVY SampleFormat = iota // 8-bit 4:2:2
	FormatV210                     // 10-bit 4:2:2
)

func (f SampleFormat) String() string {
	switch f {
	case FormatUYVY:
		return "8_yuv"
	case FormatV210:
		return "10_yuv"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// FieldTag identifies which lines of the source picture a video sample
// carries.
type FieldTag int

// Video sample field tags.
const (
	FieldProgressive FieldTag = iota
	FieldEven
	FieldOdd
)

func (f FieldTag) String() string {
	switch f {
	case FieldProgressive:
		return "progressive"
	case FieldEven:
		return "even"
	case FieldOdd:
		return "odd"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// AudioTrackFormat is the last-known format of the decoded audio stream,
// reported to the consumer once per tick.
type AudioTrackFormat struct {
	BitsPerSample int
	NumChannels   int
	SampleRate    int
}
