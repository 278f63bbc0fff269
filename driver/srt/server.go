package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/decklink/driver"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// Backend is a software capture layer: it implements driver.Registrar and
// delivers frames pushed by SRT publishers to the registered callbacks.
// A publisher selects its channel with a stream ID of the form "chN".
type Backend struct {
	log  *slog.Logger
	addr string

	mu       sync.Mutex
	nextID   driver.RegistrationID
	channels map[int]*channelSession
	pubs     map[int]bool
}

// channelSession is one active registration. closed flips before the
// shutdown notification so the reader goroutine stops delivering first.
type channelSession struct {
	id     driver.RegistrationID
	cb     driver.EventCallback
	opts   driver.ChannelOptions
	closed atomic.Bool

	// First-seen geometry; a mid-stream change triggers the format-change
	// notification. Reader goroutine only.
	sawFrame   bool
	width      int
	height     int
	pixfmt     driver.PixelFormat
	interlaced bool
}

// NewBackend creates an SRT capture backend listening on addr. If log is
// nil, slog.Default() is used.
func NewBackend(addr string, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		log:      log.With("component", "srt-capture"),
		addr:     addr,
		channels: make(map[int]*channelSession),
		pubs:     make(map[int]bool),
	}
}

// Register implements driver.Registrar. Registration reserves the channel
// and completes initialization asynchronously, like a card would.
func (b *Backend) Register(info driver.ChannelInfo, opts driver.ChannelOptions, cb driver.EventCallback) (driver.RegistrationID, error) {
	b.mu.Lock()
	if _, ok := b.channels[info.DeviceIndex]; ok {
		b.mu.Unlock()
		return 0, driver.ErrChannelBusy
	}
	b.nextID++
	s := &channelSession{id: b.nextID, cb: cb, opts: opts}
	b.channels[info.DeviceIndex] = s
	b.mu.Unlock()

	cb.AddRef()
	go cb.OnInitializationCompleted(true)

	b.log.Info("channel registered", "device", info.DeviceIndex)
	return s.id, nil
}

// Unregister implements driver.Registrar. Delivery stops before the
// shutdown notification fires; the backend's callback reference is
// released after it.
func (b *Backend) Unregister(info driver.ChannelInfo, id driver.RegistrationID) error {
	b.mu.Lock()
	s, ok := b.channels[info.DeviceIndex]
	if ok && s.id == id {
		delete(b.channels, info.DeviceIndex)
	} else {
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("srt: channel %d: no registration %d", info.DeviceIndex, id)
	}

	s.closed.Store(true)
	s.cb.OnShutdownCompleted()
	s.cb.Release()
	b.log.Info("channel unregistered", "device", info.DeviceIndex)
	return nil
}

// session returns the live registration for a device, if any.
func (b *Backend) session(device int) *channelSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[device]
}

// Start accepts SRT publishers and blocks until the context is cancelled.
func (b *Backend) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(b.addr, cfg)
	if err != nil {
		return fmt.Errorf("srt: listen on %s: %w", b.addr, err)
	}
	b.log.Info("listening", "addr", b.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if _, err := streamChannel(req.StreamID); err != nil {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("accept error", "error", err)
			continue
		}

		device, err := streamChannel(conn.StreamID())
		if err != nil {
			conn.Close()
			continue
		}
		b.log.Info("publisher connected", "device", device, "remote", conn.RemoteAddr())

		go b.handleConnection(ctx, conn, device)
	}
}

// handleConnection is the capture thread for one publisher: it reads
// frames off the socket and delivers them to the registered callback with
// borrowed buffers that are reused between deliveries.
func (b *Backend) handleConnection(ctx context.Context, conn *srtgo.Conn, device int) {
	defer conn.Close()

	// One publisher per channel: a second connection to the same device
	// is turned away so the session has a single capture thread.
	b.mu.Lock()
	if b.pubs[device] {
		b.mu.Unlock()
		b.log.Warn("rejecting second publisher", "device", device)
		return
	}
	b.pubs[device] = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pubs, device)
		b.mu.Unlock()
	}()

	var (
		head    [HeaderSize]byte
		payload []byte
		pcm     []int32
		cc      []driver.CCData
	)

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := io.ReadFull(conn, head[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Debug("read error", "device", device, "error", err)
			}
			return
		}
		h, err := ParseHeader(head[:])
		if err != nil {
			b.log.Warn("dropping publisher: bad frame header", "device", device, "error", err)
			return
		}

		total := h.payloadBytes()
		if cap(payload) < total {
			payload = make([]byte, total)
		}
		payload = payload[:total]
		if _, err := io.ReadFull(conn, payload); err != nil {
			b.log.Debug("short frame payload", "device", device, "error", err)
			return
		}

		s := b.session(device)
		if s == nil || s.closed.Load() {
			continue // nothing registered, keep draining the publisher
		}

		video := payload[:h.VideoBytes]
		pcm, err = decodePCM(pcm, payload[h.VideoBytes:h.VideoBytes+h.AudioBytes])
		if err != nil {
			b.log.Warn("dropping publisher: bad audio payload", "device", device, "error", err)
			return
		}
		cc = decodeCC(cc, payload[h.VideoBytes+h.AudioBytes:])

		if changed := b.checkFormat(s, &h); changed {
			continue
		}

		info := driver.FrameInfo{
			HasInputSource:   h.HasInput,
			VideoPitch:       h.Pitch,
			VideoWidth:       h.Width,
			VideoHeight:      h.Height,
			PixelFormat:      h.PixelFormat,
			NumAudioChannels: h.AudioChannels,
			AudioRate:        h.AudioRate,
			HasTimecode:      h.HasTimecode,
			Timecode:         h.Timecode,
			FieldDominance:   h.fieldDominance(),
			CCData:           cc,
		}
		if s.opts.ReadVideo && h.VideoBytes > 0 {
			info.VideoBuffer = video
		}
		if s.opts.ReadAudio && len(pcm) > 0 {
			info.AudioBuffer = pcm
		}

		s.cb.OnFrameReceived(&info)
	}
}

// checkFormat records the first-seen geometry and reports a mid-stream
// change through the callback. The new geometry is adopted so the change
// is reported once, not once per subsequent frame. Returns true if the
// frame should not be delivered.
func (b *Backend) checkFormat(s *channelSession, h *FrameHeader) bool {
	if h.VideoBytes == 0 {
		return false
	}
	if s.sawFrame &&
		s.width == h.Width && s.height == h.Height &&
		s.pixfmt == h.PixelFormat && s.interlaced == h.Interlaced {
		return false
	}

	changed := s.sawFrame
	s.sawFrame = true
	s.width, s.height = h.Width, h.Height
	s.pixfmt = h.PixelFormat
	s.interlaced = h.Interlaced

	if changed {
		s.cb.OnFrameFormatChanged(driver.FormatInfo{
			Width:          h.Width,
			Height:         h.Height,
			PixelFormat:    h.PixelFormat,
			FieldDominance: h.fieldDominance(),
		})
	}
	return changed
}
