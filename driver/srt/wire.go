// Package srt implements driver.Registrar over an SRT listener: a
// publisher pushes length-framed raw frames and the backend delivers them
// through the standard capture callback contract on its own read
// goroutine. It stands in for a physical capture card during development
// and integration testing.
package srt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zsiec/decklink/driver"
)

// frameMagic starts every frame header on the wire.
const frameMagic = 0x444C4631 // "DLF1"

// HeaderSize is the fixed size of the wire frame header in bytes.
const HeaderSize = 36

// Header flag bits.
const (
	flagHasInput    = 1 << 0
	flagHasTimecode = 1 << 1
	flagInterlaced  = 1 << 2
	flag10Bit       = 1 << 3
)

// maxFrameBytes bounds a single payload so a corrupt header cannot make
// the reader allocate without limit. 4K v210 is ~24 MB.
const maxFrameBytes = 64 << 20

// FrameHeader describes one pushed frame: geometry, optional timecode,
// and the payload lengths that follow the header on the wire.
type FrameHeader struct {
	HasInput    bool
	HasTimecode bool
	Interlaced  bool
	PixelFormat driver.PixelFormat

	Width  int
	Height int
	Pitch  int

	AudioRate     int
	AudioChannels int

	Timecode driver.Timecode

	VideoBytes int // bytes of raw pixels following the header
	AudioBytes int // bytes of big-endian int32 PCM following the pixels
	CCCount    int // cc_data triplets (3 bytes each) following the PCM
}

// Wire format errors.
var (
	ErrBadMagic   = errors.New("srt: bad frame magic")
	ErrShortHead  = errors.New("srt: short frame header")
	ErrFrameSize  = errors.New("srt: frame payload too large")
	ErrAudioAlign = errors.New("srt: audio payload not int32-aligned")
)

// Marshal appends the wire encoding of the header to dst.
func (h *FrameHeader) Marshal(dst []byte) []byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], frameMagic)

	var flags uint16
	if h.HasInput {
		flags |= flagHasInput
	}
	if h.HasTimecode {
		flags |= flagHasTimecode
	}
	if h.Interlaced {
		flags |= flagInterlaced
	}
	if h.PixelFormat == driver.PixelFormat10BitYUV {
		flags |= flag10Bit
	}
	binary.BigEndian.PutUint16(buf[4:6], flags)

	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Width))
	binary.BigEndian.PutUint16(buf[8:10], uint16(h.Height))
	binary.BigEndian.PutUint32(buf[10:14], uint32(h.Pitch))
	binary.BigEndian.PutUint32(buf[14:18], uint32(h.AudioRate))
	buf[18] = byte(h.AudioChannels)
	buf[19] = h.Timecode.Hours
	buf[20] = h.Timecode.Minutes
	buf[21] = h.Timecode.Seconds
	buf[22] = h.Timecode.Frames
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.VideoBytes))
	binary.BigEndian.PutUint32(buf[28:32], uint32(h.AudioBytes))
	binary.BigEndian.PutUint16(buf[32:34], uint16(h.CCCount))

	return append(dst, buf[:]...)
}

// ParseHeader decodes a wire frame header.
func ParseHeader(buf []byte) (FrameHeader, error) {
	var h FrameHeader
	if len(buf) < HeaderSize {
		return h, ErrShortHead
	}
	if binary.BigEndian.Uint32(buf[0:4]) != frameMagic {
		return h, ErrBadMagic
	}

	flags := binary.BigEndian.Uint16(buf[4:6])
	h.HasInput = flags&flagHasInput != 0
	h.HasTimecode = flags&flagHasTimecode != 0
	h.Interlaced = flags&flagInterlaced != 0
	if flags&flag10Bit != 0 {
		h.PixelFormat = driver.PixelFormat10BitYUV
	}

	h.Width = int(binary.BigEndian.Uint16(buf[6:8]))
	h.Height = int(binary.BigEndian.Uint16(buf[8:10]))
	h.Pitch = int(binary.BigEndian.Uint32(buf[10:14]))
	h.AudioRate = int(binary.BigEndian.Uint32(buf[14:18]))
	h.AudioChannels = int(buf[18])
	h.Timecode = driver.Timecode{
		Hours:   buf[19],
		Minutes: buf[20],
		Seconds: buf[21],
		Frames:  buf[22],
	}
	h.VideoBytes = int(binary.BigEndian.Uint32(buf[24:28]))
	h.AudioBytes = int(binary.BigEndian.Uint32(buf[28:32]))
	h.CCCount = int(binary.BigEndian.Uint16(buf[32:34]))

	if h.VideoBytes > maxFrameBytes || h.AudioBytes > maxFrameBytes {
		return h, ErrFrameSize
	}
	if h.AudioBytes%4 != 0 {
		return h, ErrAudioAlign
	}
	return h, nil
}

// fieldDominance maps the wire flag to the driver enum.
func (h *FrameHeader) fieldDominance() driver.FieldDominance {
	if h.Interlaced {
		return driver.Interlaced
	}
	return driver.Progressive
}

// payloadBytes is the total length following the header.
func (h *FrameHeader) payloadBytes() int {
	return h.VideoBytes + h.AudioBytes + h.CCCount*3
}

// decodePCM converts the big-endian int32 payload into dst, growing it as
// needed, and returns the slice.
func decodePCM(dst []int32, payload []byte) ([]int32, error) {
	if len(payload)%4 != 0 {
		return dst, ErrAudioAlign
	}
	n := len(payload) / 4
	if cap(dst) < n {
		dst = make([]int32, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = int32(binary.BigEndian.Uint32(payload[i*4:]))
	}
	return dst, nil
}

// decodeCC converts the cc_data triplet payload.
func decodeCC(dst []driver.CCData, payload []byte) []driver.CCData {
	dst = dst[:0]
	for i := 0; i+3 <= len(payload); i += 3 {
		dst = append(dst, driver.CCData{
			Type: payload[i] & 0x03,
			Data: [2]byte{payload[i+1], payload[i+2]},
		})
	}
	return dst
}

// streamChannel parses an SRT stream ID of the form "chN" into a device
// index.
func streamChannel(streamID string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(streamID, "ch%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("srt: bad stream id %q", streamID)
	}
	return n, nil
}
