package player

import (
	"github.com/zsiec/decklink/driver"
	"github.com/zsiec/decklink/media"
)

// Options configures a capture session at open time.
type Options struct {
	// DeviceIndex selects the capture card input channel.
	DeviceIndex int

	CaptureVideo bool
	CaptureAudio bool

	// PixelFormat is the raw format requested from the card.
	PixelFormat driver.PixelFormat

	// TimecodeFormat selects the hardware timecode source. TimecodeNone
	// disables timecode decoding entirely.
	TimecodeFormat driver.TimecodeFormat

	// NumAudioChannels is 2 (stereo) or 8 (surround).
	NumAudioChannels int

	// SRGBInput marks the source as sRGB, needing a to-linear conversion
	// downstream.
	SRGBInput bool

	// EncodeTimecodeInTexel burns the decoded timecode into the pixel
	// buffer before sample construction. Ignored when TimecodeFormat is
	// TimecodeNone.
	EncodeTimecodeInTexel bool

	// Soft queue limits per stream. The capture callback starts dropping
	// at twice the limit; the tick driver prunes back down to the limit.
	MaxAudioFrames   int
	MaxVideoFrames   int
	MaxCaptionFrames int

	// LogDropFrames enables the once-per-tick lost-frame warnings.
	LogDropFrames bool

	// UseTimeSynchronization replaces the platform-derived sample time
	// with the timecode-derived time when a hardware timecode is present.
	UseTimeSynchronization bool

	// LogTimecode logs every decoded timecode. Diagnostic only.
	LogTimecode bool

	// FrameRate of the selected display mode.
	FrameRate media.FrameRate

	// DisplayMode is the card's display mode identifier, passed through
	// to the driver.
	DisplayMode int

	// RawDumpDir receives one-shot raw frame dumps. Defaults to the
	// system temp directory.
	RawDumpDir string
}

func (o *Options) applyDefaults() {
	if o.MaxAudioFrames <= 0 {
		o.MaxAudioFrames = media.DefaultMaxAudioFrames
	}
	if o.MaxVideoFrames <= 0 {
		o.MaxVideoFrames = media.DefaultMaxVideoFrames
	}
	if o.MaxCaptionFrames <= 0 {
		o.MaxCaptionFrames = media.DefaultMaxCaptionFrames
	}
	if o.NumAudioChannels != 8 {
		o.NumAudioChannels = 2
	}
	if o.FrameRate.Num <= 0 || o.FrameRate.Den <= 0 {
		o.FrameRate = media.FrameRate{Num: 30, Den: 1}
	}
	if o.TimecodeFormat == driver.TimecodeNone {
		o.EncodeTimecodeInTexel = false
	}
}

func (o *Options) channelOptions() driver.ChannelOptions {
	return driver.ChannelOptions{
		CallbackPriority: 10,
		ReadVideo:        o.CaptureVideo,
		ReadAudio:        o.CaptureAudio,
		DisplayMode:      o.DisplayMode,
		PixelFormat:      o.PixelFormat,
		TimecodeFormat:   o.TimecodeFormat,
		NumAudioChannels: o.NumAudioChannels,
	}
}
