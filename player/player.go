// Package player converts the asynchronous capture-thread callback stream
// of a hardware input channel into time-ordered, bounded sample queues
// that an application drains at its own cadence.
//
// Two concurrency domains meet here: the driver-owned capture thread
// delivers frames and completion events whenever it likes, and a single
// consumer thread ticks the Player once per application frame. The
// capture side never blocks on the consumer; when the consumer falls
// behind, frames are dropped and counted instead.
package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/decklink/driver"
	"github.com/zsiec/decklink/media"
)

// Event is a lifecycle notification delivered to the EventSink on the
// consumer thread, in order.
type Event int

// Lifecycle events.
const (
	EventTracksChanged Event = iota
	EventMediaOpened
	EventPlaybackResumed
	EventMediaOpenFailed
	EventMediaClosed
)

func (e Event) String() string {
	switch e {
	case EventTracksChanged:
		return "tracks-changed"
	case EventMediaOpened:
		return "media-opened"
	case EventPlaybackResumed:
		return "playback-resumed"
	case EventMediaOpenFailed:
		return "media-open-failed"
	case EventMediaClosed:
		return "media-closed"
	}
	return "event"
}

// EventSink receives lifecycle notifications from the tick driver.
type EventSink interface {
	ReceiveMediaEvent(Event)
}

// Errors returned by Open.
var (
	ErrAlreadyOpen = errors.New("player: already open")
)

// Player is the consumer-thread half of a capture session. It polls the
// callback-owned state once per tick, drives lifecycle transitions,
// refreshes the audio format snapshot, and prunes queue overflow.
//
// All Player methods must be called from the same consumer goroutine,
// except Snapshot, State, URL and AudioTrackFormat, which may be called
// from any goroutine.
type Player struct {
	log       *slog.Logger
	sink      EventSink
	registrar driver.Registrar

	samples   *media.SampleQueue
	audioPool *media.AudioPool
	videoPool *media.VideoPool

	// elapsed is the platform time source shared with the callback.
	elapsed func() time.Duration

	// mu guards the session fields below: the tick goroutine writes
	// them, snapshot readers on other goroutines observe them.
	mu           sync.Mutex
	url          string
	cb           *eventCallback
	currentState media.State
	audioFormat  media.AudioTrackFormat
	lastTickAt   time.Time
	tickCount    int64
}

// New creates a Player delivering lifecycle events to sink and opening
// channels through registrar. If log is nil, slog.Default() is used.
func New(sink EventSink, registrar driver.Registrar, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	return &Player{
		log:       log.With("component", "player"),
		sink:      sink,
		registrar: registrar,
		samples:   &media.SampleQueue{},
		audioPool: &media.AudioPool{},
		videoPool: &media.VideoPool{},
		elapsed:   func() time.Duration { return time.Since(start) },
	}
}

// Open registers a capture session for the channel described by opts.
// The session is not live when Open returns: registration completes
// asynchronously and TickInput surfaces the transition to Playing (or the
// open failure) on a later tick.
func (p *Player) Open(url string, opts Options) error {
	if p.cb != nil {
		return ErrAlreadyOpen
	}
	opts.applyDefaults()

	// Per-session logger: the base logger stays clean across reopens.
	cb := newEventCallback(p, p.log.With("url", url), url, opts)

	if err := cb.initialize(opts); err != nil {
		cb.uninitialize()
		return err
	}

	p.mu.Lock()
	p.url = url
	p.cb = cb
	p.mu.Unlock()

	p.log.Info("capture channel opened", "url", url, "device", opts.DeviceIndex)
	return nil
}

// Close tears down the session: detaches and unregisters the callback,
// flushes the queues, and reclaims the sample pools. Safe to call while
// the capture thread is still delivering; any in-flight callback becomes
// a no-op.
func (p *Player) Close() {
	p.mu.Lock()
	cb := p.cb
	url := p.url
	p.cb = nil
	p.mu.Unlock()

	if cb != nil {
		cb.uninitialize()
		p.log.Info("capture channel closed", "url", url)
	}

	p.samples.Flush()
	p.audioPool.Reset()
	p.videoPool.Reset()
}

// State returns the state observed at the last TickInput.
func (p *Player) State() media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentState
}

// URL returns the display identifier the session was opened with.
func (p *Player) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Samples returns the session's sample queue.
func (p *Player) Samples() *media.SampleQueue {
	return p.samples
}

// AudioTrackFormat returns the format snapshot of the most recently
// decoded audio, refreshed by TickFetch.
func (p *Player) AudioTrackFormat() media.AudioTrackFormat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioFormat
}

// TickInput polls the callback state and drives lifecycle transitions.
// Call once per application frame, before TickFetch.
func (p *Player) TickInput() {
	newState := media.StateClosed
	if p.cb != nil {
		newState = p.cb.mediaState()
	}

	if newState != p.currentState {
		p.mu.Lock()
		p.currentState = newState
		p.mu.Unlock()
		switch newState {
		case media.StatePlaying:
			p.sink.ReceiveMediaEvent(EventTracksChanged)
			p.sink.ReceiveMediaEvent(EventMediaOpened)
			p.sink.ReceiveMediaEvent(EventPlaybackResumed)
		case media.StateError:
			p.sink.ReceiveMediaEvent(EventMediaOpenFailed)
			p.Close()
		case media.StateClosed:
			p.sink.ReceiveMediaEvent(EventMediaClosed)
		}
	}

	if p.currentState != media.StatePlaying {
		return
	}

	p.tickTimeManagement()
}

// TickFetch refreshes the audio format snapshot and verifies drop counts.
// Call once per application frame, after TickInput. Does nothing unless
// the hardware session is live.
func (p *Player) TickFetch() {
	if !p.hardwareReady() {
		return
	}
	format := p.cb.audioTrackFormat()
	p.mu.Lock()
	p.audioFormat = format
	p.mu.Unlock()
	p.cb.verifyFrameDropCount()
}

// Snapshot is a point-in-time view of session health for the diagnostics
// API.
type Snapshot struct {
	URL            string                 `json:"url"`
	Device         int                    `json:"device"`
	State          string                 `json:"state"`
	AudioQueued    int                    `json:"audioQueued"`
	VideoQueued    int                    `json:"videoQueued"`
	CaptionQueued  int                    `json:"captionQueued"`
	AudioLost      int64                  `json:"audioLost"`
	VideoLost      int64                  `json:"videoLost"`
	CaptionLost    int64                  `json:"captionLost"`
	LastTimecode   string                 `json:"lastTimecode,omitempty"`
	AudioFormat    media.AudioTrackFormat `json:"audioFormat"`
	TicksProcessed int64                  `json:"ticksProcessed"`
}

// Snapshot returns the current session snapshot. Safe to call from any
// goroutine: the session fields are copied under the player lock, queue
// depths and loss totals are read atomically.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	cb := p.cb
	s := Snapshot{
		URL:            p.url,
		State:          p.currentState.String(),
		AudioFormat:    p.audioFormat,
		TicksProcessed: p.tickCount,
	}
	p.mu.Unlock()

	s.AudioQueued = p.samples.NumAudioSamples()
	s.VideoQueued = p.samples.NumVideoSamples()
	s.CaptionQueued = p.samples.NumCaptionFrames()

	if cb != nil {
		s.Device = cb.channel.DeviceIndex
		s.AudioLost = cb.totalAudioLost.Load()
		s.VideoLost = cb.totalVideoLost.Load()
		s.CaptionLost = cb.totalCaptionLost.Load()
		if tc, ok := cb.lastTimecode(); ok {
			s.LastTimecode = tc.String()
		}
	}
	return s
}

// hardwareReady reports whether the session is registered and playing.
func (p *Player) hardwareReady() bool {
	return p.cb != nil && p.cb.mediaState() == media.StatePlaying
}

// tickTimeManagement keeps the consumer-side time bookkeeping: tick count
// and the instant of the last tick, used by downstream time sync.
func (p *Player) tickTimeManagement() {
	p.mu.Lock()
	p.tickCount++
	p.lastTickAt = time.Now()
	p.mu.Unlock()
}
