// Command frame-push publishes synthetic raw frames to a running capture
// backend over SRT, standing in for a capture card during development.
// Each frame carries a rolling timecode, a moving luma bar so drops are
// visible downstream, and optional PCM and caption padding.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/decklink/driver"
	srtwire "github.com/zsiec/decklink/driver/srt"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT backend address")
	channelFlag := flag.Int("channel", 0, "Capture channel to publish to")
	widthFlag := flag.Int("width", 1280, "Frame width")
	heightFlag := flag.Int("height", 720, "Frame height")
	fpsFlag := flag.Int("fps", 30, "Frames per second")
	interlacedFlag := flag.Bool("interlaced", false, "Publish interlaced frames")
	audioFlag := flag.Bool("audio", true, "Include a 1 kHz stereo tone")
	captionsFlag := flag.Bool("captions", false, "Include CEA-708 padding triplets")
	flag.Parse()

	streamID := fmt.Sprintf("ch%d", *channelFlag)
	interval := time.Second / time.Duration(*fpsFlag)

	gen := newFrameGen(*widthFlag, *heightFlag, *fpsFlag, *interlacedFlag, *audioFlag, *captionsFlag)

	for {
		fmt.Printf("[%s] Connecting to SRT %s...\n", streamID, *addrFlag)

		cfg := srtgo.DefaultConfig()
		cfg.StreamID = streamID

		conn, err := srtgo.Dial(*addrFlag, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] SRT connect failed: %v, retrying...\n", streamID, err)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("[%s] Connected, publishing %dx%d @%d fps\n", streamID, *widthFlag, *heightFlag, *fpsFlag)
		writeErr := publishLoop(conn, gen, interval, streamID)
		conn.Close()

		if writeErr != nil {
			fmt.Fprintf(os.Stderr, "[%s] Connection lost: %v, reconnecting...\n", streamID, writeErr)
			time.Sleep(time.Second)
		}
	}
}

func publishLoop(conn *srtgo.Conn, gen *frameGen, interval time.Duration, streamID string) error {
	start := time.Now()
	lastLog := start
	const logInterval = 10 * time.Second

	for n := int64(0); ; n++ {
		wire := gen.next()
		if _, err := conn.Write(wire); err != nil {
			return err
		}

		// Pace against the global clock so timing stays continuous.
		next := time.Duration(n+1) * interval
		if elapsed := time.Since(start); next > elapsed {
			time.Sleep(next - elapsed)
		}

		if time.Since(lastLog) >= logInterval {
			lastLog = time.Now()
			fmt.Printf("[%s] %d frames published (%s elapsed)\n",
				streamID, n+1, time.Since(start).Truncate(time.Second))
		}
	}
}

// frameGen produces wire frames with a rolling timecode and a luma bar
// that advances one step per frame.
type frameGen struct {
	width, height int
	fps           int
	interlaced    bool
	audio         bool
	captions      bool

	frame int
	buf   []byte
}

func newFrameGen(width, height, fps int, interlaced, audio, captions bool) *frameGen {
	return &frameGen{
		width:      width,
		height:     height,
		fps:        fps,
		interlaced: interlaced,
		audio:      audio,
		captions:   captions,
	}
}

// next builds the complete wire frame: header, UYVY pixels, PCM, cc_data.
func (g *frameGen) next() []byte {
	pitch := g.width * 2
	h := srtwire.FrameHeader{
		HasInput:    true,
		HasTimecode: true,
		Interlaced:  g.interlaced,
		PixelFormat: driver.PixelFormat8BitYUV,
		Width:       g.width,
		Height:      g.height,
		Pitch:       pitch,
		Timecode:    g.timecode(),
		VideoBytes:  pitch * g.height,
	}

	var pcm []byte
	if g.audio {
		pcm = g.tone()
		h.AudioRate = 48000
		h.AudioChannels = 2
		h.AudioBytes = len(pcm)
	}

	var cc []byte
	if g.captions {
		cc = ccPadding()
		h.CCCount = len(cc) / 3
	}

	g.buf = h.Marshal(g.buf[:0])
	g.buf = g.appendVideo(g.buf, pitch)
	g.buf = append(g.buf, pcm...)
	g.buf = append(g.buf, cc...)
	g.frame++
	return g.buf
}

func (g *frameGen) timecode() driver.Timecode {
	f := g.frame
	step := 1
	if g.interlaced {
		step = 2 // field two takes the odd frame numbers
	}
	perSec := g.fps / step
	return driver.Timecode{
		Hours:   uint8(f / (3600 * perSec) % 24),
		Minutes: uint8(f / (60 * perSec) % 60),
		Seconds: uint8(f / perSec % 60),
		Frames:  uint8(f % perSec * step),
	}
}

// appendVideo paints mid-gray UYVY with a white bar whose position
// advances one column group per frame.
func (g *frameGen) appendVideo(dst []byte, pitch int) []byte {
	const barWidth = 32
	barX := g.frame * 2 % g.width

	base := len(dst)
	for i := 0; i < pitch*g.height; i += 2 {
		dst = append(dst, 0x80, 0x10) // neutral chroma, near-black luma
	}
	for y := 0; y < g.height; y++ {
		row := dst[base+y*pitch:]
		for x := barX; x < barX+barWidth && x < g.width; x++ {
			row[2*x+1] = 0xEB
		}
	}
	return dst
}

// tone is one frame's worth of 1 kHz stereo int32 PCM.
func (g *frameGen) tone() []byte {
	samples := 48000 / g.fps
	out := make([]byte, samples*2*4)
	for i := 0; i < samples; i++ {
		t := float64(g.frame*samples+i) / 48000
		v := int32(0.2 * math.Sin(2*math.Pi*1000*t) * math.MaxInt32)
		binary.BigEndian.PutUint32(out[i*8:], uint32(v))
		binary.BigEndian.PutUint32(out[i*8+4:], uint32(v))
	}
	return out
}

// ccPadding is a minimal valid cc_data run: 608 padding on both fields
// plus a DTVCC null packet start.
func ccPadding() []byte {
	return []byte{
		0xFC, 0x80, 0x80, // field one padding
		0xFD, 0x80, 0x80, // field two padding
		0xFF, 0x00, 0x00, // DTVCC packet start, empty
	}
}
