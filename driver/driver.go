// Package driver defines the contract between the capture hardware layer
// and the player: channel registration, the event callback capability set,
// and the transient frame payload delivered on the capture thread.
//
// Implementations own the capture thread. They must treat the callback as
// non-blocking and non-throwing: a callback that stalls causes the driver
// itself to drop frames upstream.
package driver

import "errors"

// ChannelInfo identifies one hardware input channel.
type ChannelInfo struct {
	DeviceIndex int
}

// PixelFormat is the raw capture pixel format requested from the card.
type PixelFormat int

// Capture pixel formats.
const (
	PixelFormat8BitYUV PixelFormat = iota
	PixelFormat10BitYUV
)

// FieldDominance describes how a delivered frame's picture is laid out.
type FieldDominance int

// Field dominance values.
const (
	Progressive FieldDominance = iota
	Interlaced
)

// TimecodeFormat selects which hardware timecode source to decode.
type TimecodeFormat int

// Timecode sources.
const (
	TimecodeNone TimecodeFormat = iota
	TimecodeLTC
	TimecodeVITC
)

// ChannelOptions configures a channel registration.
type ChannelOptions struct {
	CallbackPriority int
	ReadVideo        bool
	ReadAudio        bool
	DisplayMode      int
	PixelFormat      PixelFormat
	TimecodeFormat   TimecodeFormat
	NumAudioChannels int
}

// Timecode is the raw hardware timecode as delivered by the card. Frame
// rates above 30 fps arrive already flattened to a linear frame count.
type Timecode struct {
	Hours   uint8
	Minutes uint8
	Seconds uint8
	Frames  uint8
}

// CCData is one CEA-708 cc_data triplet recovered from the frame's VANC
// ancillary space. Type follows the cc_type field: 0/1 are CEA-608 field
// one/two pairs, 2 is DTVCC continuation, 3 is DTVCC packet start.
type CCData struct {
	Type byte
	Data [2]byte
}

// FrameInfo is a single delivery from the capture thread. Buffers are
// borrowed views into driver-owned memory, valid only until the callback
// returns; anything that must outlive the call has to be copied out.
type FrameInfo struct {
	HasInputSource bool

	VideoBuffer []byte
	VideoPitch  int
	VideoWidth  int
	VideoHeight int
	PixelFormat PixelFormat

	AudioBuffer      []int32
	NumAudioChannels int
	AudioRate        int

	HasTimecode bool
	Timecode    Timecode

	FieldDominance FieldDominance

	CCData []CCData
}

// FormatInfo describes the signal format reported on a format change.
type FormatInfo struct {
	DisplayMode    int
	Width          int
	Height         int
	PixelFormat    PixelFormat
	FieldDominance FieldDominance
}

// EventCallback is the capability set a registrant hands to the hardware
// layer. All methods are invoked on the capture thread. The hardware layer
// holds a reference for the lifetime of the registration and releases it
// after OnShutdownCompleted.
type EventCallback interface {
	OnInitializationCompleted(success bool)
	OnShutdownCompleted()
	OnFrameReceived(info *FrameInfo)
	OnFrameFormatChanged(format FormatInfo)

	AddRef()
	Release()
}

// RegistrationID identifies one active channel registration. The zero
// value is invalid.
type RegistrationID uint64

// Valid reports whether the registration identifier refers to an active
// registration.
func (id RegistrationID) Valid() bool { return id != 0 }

// Registrar is the channel registration surface of the hardware layer.
type Registrar interface {
	// Register opens the channel and begins delivering events to cb.
	// The registrar takes a reference on cb that it releases after
	// OnShutdownCompleted.
	Register(info ChannelInfo, opts ChannelOptions, cb EventCallback) (RegistrationID, error)

	// Unregister closes the channel. OnShutdownCompleted fires once the
	// capture thread has stopped delivering.
	Unregister(info ChannelInfo, id RegistrationID) error
}

// ErrChannelBusy is returned by Register when the channel already has an
// active registration.
var ErrChannelBusy = errors.New("driver: channel already registered")
