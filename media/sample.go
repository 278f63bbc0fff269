package media

import (
	"sync/atomic"
	"time"
)

// VideoSample is one decoded picture (or one field of an interlaced
// picture) ready for the consumer. The pixel buffer is deep-copied out of
// the driver's transient frame at init time; the driver buffer is never
// referenced after the capture callback returns.
//
// Samples are reference counted. Acquire hands them out with a count of
// one; Release at zero recycles the sample into its pool.
type VideoSample struct {
	refs atomic.Int32
	pool *VideoPool
	gen  uint64

	Data     []byte
	Pitch    int
	Width    int
	Height   int
	Format   SampleFormat
	Time     time.Duration
	Rate     FrameRate
	Timecode *Timecode
	Field    FieldTag
	SRGB     bool
}

// InitFull copies a full progressive picture out of the driver buffer.
// Returns false if the buffer is empty or the geometry is invalid.
func (s *VideoSample) InitFull(buf []byte, pitch, width, height int, format SampleFormat, t time.Duration, rate FrameRate, tc *Timecode, srgb bool) bool {
	if len(buf) == 0 || pitch <= 0 || width <= 0 || height <= 0 {
		return false
	}
	s.Data = append(s.Data[:0], buf...)
	s.Pitch = pitch
	s.Width = width
	s.Height = height
	s.Format = format
	s.Time = t
	s.Rate = rate
	s.Timecode = copyTimecode(tc)
	s.Field = FieldProgressive
	s.SRGB = srgb
	return true
}

// InitField copies only the even or odd lines of an interlaced picture,
// producing a half-height sample with the same pitch.
func (s *VideoSample) InitField(even bool, buf []byte, pitch, width, height int, format SampleFormat, t time.Duration, rate FrameRate, tc *Timecode, srgb bool) bool {
	if len(buf) == 0 || pitch <= 0 || width <= 0 || height <= 0 {
		return false
	}
	start := 0
	s.Field = FieldEven
	if !even {
		start = 1
		s.Field = FieldOdd
	}
	s.Data = s.Data[:0]
	for line := start; line < height; line += 2 {
		off := line * pitch
		if off+pitch > len(buf) {
			break
		}
		s.Data = append(s.Data, buf[off:off+pitch]...)
	}
	s.Pitch = pitch
	s.Width = width
	s.Height = len(s.Data) / pitch
	s.Format = format
	s.Time = t
	s.Rate = rate
	s.Timecode = copyTimecode(tc)
	s.SRGB = srgb
	return true
}

// Retain increments the reference count.
func (s *VideoSample) Retain() {
	s.refs.Add(1)
}

// Release decrements the reference count, recycling the sample into its
// pool when the count reaches zero.
func (s *VideoSample) Release() {
	if s.refs.Add(-1) == 0 && s.pool != nil {
		s.pool.recycle(s)
	}
}

// AudioSample is one block of decoded PCM audio. Samples are 32-bit
// signed integers, interleaved by channel, deep-copied out of the driver
// buffer at init time.
type AudioSample struct {
	refs atomic.Int32
	pool *AudioPool
	gen  uint64

	Data        []int32
	NumChannels int
	SampleRate  int
	Time        time.Duration
	Timecode    *Timecode
}

// Init copies the driver audio buffer into the sample. Returns false if
// the buffer is empty or the channel count or rate is invalid.
func (s *AudioSample) Init(buf []int32, channels, rate int, t time.Duration, tc *Timecode) bool {
	if len(buf) == 0 || channels <= 0 || rate <= 0 {
		return false
	}
	s.Data = append(s.Data[:0], buf...)
	s.NumChannels = channels
	s.SampleRate = rate
	s.Time = t
	s.Timecode = copyTimecode(tc)
	return true
}

// Retain increments the reference count.
func (s *AudioSample) Retain() {
	s.refs.Add(1)
}

// Release decrements the reference count, recycling the sample into its
// pool when the count reaches zero.
func (s *AudioSample) Release() {
	if s.refs.Add(-1) == 0 && s.pool != nil {
		s.pool.recycle(s)
	}
}

func copyTimecode(tc *Timecode) *Timecode {
	if tc == nil {
		return nil
	}
	c := *tc
	return &c
}
