package player

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/ccx"

	"github.com/zsiec/decklink/driver"
	"github.com/zsiec/decklink/internal/encode"
	"github.com/zsiec/decklink/internal/rawfile"
	"github.com/zsiec/decklink/media"
)

// toleratedOverflowFactor is applied to the configured queue limits before
// the capture thread starts dropping. The tick driver prunes the slack
// back down to the configured limit once per tick.
const toleratedOverflowFactor = 2

// connectGrace is how long an absent input signal is tolerated at startup
// before the session goes to error.
const connectGrace = 2 * time.Second

// nativeBitsPerSample is the sample width the driver delivers PCM in.
const nativeBitsPerSample = 32

// rawDumpArmed is the process-wide one-shot raw dump command. Arm it and
// the next captured video buffer is written to disk, then the flag clears
// itself.
var rawDumpArmed atomic.Bool

// ArmRawDump requests that the next captured raw video buffer be dumped
// to a file. Fires once, then disarms.
func ArmRawDump() {
	rawDumpArmed.Store(true)
}

// eventCallback receives capture events on the driver's thread. It owns
// the session state machine, timecode reconciliation, and the overflow
// drop policy. It is jointly owned by the player and the hardware layer
// via reference counting; whichever releases last ends its life.
type eventCallback struct {
	log       *slog.Logger
	registrar driver.Registrar
	channel   driver.ChannelInfo
	url       string

	refs  atomic.Int32
	state atomic.Int32 // media.State, written by capture thread, polled by tick

	// Configuration, fixed at initialize.
	rate             media.FrameRate
	encodeTexel      bool
	srgbInput        bool
	syncToTimecode   bool
	logTimecode      bool
	logDropFrames    bool
	maxAudioFrames   int
	maxVideoFrames   int
	maxCaptionFrames int
	timecodeExpected bool
	rawDumpDir       string

	// elapsed returns platform time since an arbitrary epoch. Swappable
	// in tests.
	elapsed func() time.Duration

	// mu serializes each capture-thread invocation against uninitialize.
	// Held only for the duration of one callback; logging is deferred
	// until after release so a slow sink cannot stall the capture thread.
	mu     sync.Mutex
	player *Player
	regID  driver.RegistrationID

	prevTimecode          media.Timecode
	hasPrevTimecode       bool
	warnedMissingTimecode bool
	noSignalSince         time.Duration
	sawNoSignal           bool
	receivedValidFrame    bool

	lastBitsPerSample int
	lastNumChannels   int
	lastSampleRate    int

	captions *captionDecoder

	// Drop counters: add-and-fetch on the capture thread, exchange-and-
	// reset on the tick thread. No lock needed.
	audioDrops   atomic.Int64
	videoDrops   atomic.Int64
	captionDrops atomic.Int64

	// Cumulative totals for diagnostics, updated on the tick thread.
	totalAudioLost   atomic.Int64
	totalVideoLost   atomic.Int64
	totalCaptionLost atomic.Int64
}

func newEventCallback(p *Player, log *slog.Logger, url string, opts Options) *eventCallback {
	c := &eventCallback{
		log:              log,
		registrar:        p.registrar,
		channel:          driver.ChannelInfo{DeviceIndex: opts.DeviceIndex},
		url:              url,
		rate:             opts.FrameRate,
		encodeTexel:      opts.EncodeTimecodeInTexel,
		srgbInput:        opts.SRGBInput,
		syncToTimecode:   opts.UseTimeSynchronization,
		logTimecode:      opts.LogTimecode,
		logDropFrames:    opts.LogDropFrames,
		maxAudioFrames:   opts.MaxAudioFrames,
		maxVideoFrames:   opts.MaxVideoFrames,
		maxCaptionFrames: opts.MaxCaptionFrames,
		timecodeExpected: opts.TimecodeFormat != driver.TimecodeNone,
		rawDumpDir:       opts.RawDumpDir,
		elapsed:          p.elapsed,
		player:           p,
		captions:         newCaptionDecoder(),
	}
	c.state.Store(int32(media.StateClosed))
	return c
}

// initialize registers with the hardware layer. The callback takes a
// reference on itself so it outlives the pending async completion even if
// the player closes immediately.
func (c *eventCallback) initialize(opts Options) error {
	c.AddRef()

	id, err := c.registrar.Register(c.channel, opts.channelOptions(), c)
	if err != nil {
		c.state.Store(int32(media.StateError))
		return fmt.Errorf("register channel %d: %w", c.channel.DeviceIndex, err)
	}

	c.mu.Lock()
	c.regID = id
	c.mu.Unlock()
	c.state.Store(int32(media.StatePreparing))
	return nil
}

// uninitialize detaches the owning player so in-flight callbacks become
// no-ops, then unregisters. The hardware layer is called outside the
// session lock to avoid inverting lock order with driver-internal locks.
func (c *eventCallback) uninitialize() {
	c.mu.Lock()
	c.player = nil
	id := c.regID
	c.regID = 0
	if id.Valid() {
		c.state.Store(int32(media.StateStopped))
	}
	c.mu.Unlock()

	if id.Valid() {
		if err := c.registrar.Unregister(c.channel, id); err != nil {
			c.log.Warn("unregister failed", "channel", c.channel.DeviceIndex, "error", err)
		}
	}

	c.Release()
}

func (c *eventCallback) mediaState() media.State {
	return media.State(c.state.Load())
}

// audioTrackFormat reports the format of the most recently decoded audio.
func (c *eventCallback) audioTrackFormat() media.AudioTrackFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return media.AudioTrackFormat{
		BitsPerSample: c.lastBitsPerSample,
		NumChannels:   c.lastNumChannels,
		SampleRate:    c.lastSampleRate,
	}
}

// lastTimecode returns the most recently decoded hardware timecode. The
// second return is false until one has been seen this session.
func (c *eventCallback) lastTimecode() (media.Timecode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevTimecode, c.hasPrevTimecode
}

// AddRef implements driver.EventCallback.
func (c *eventCallback) AddRef() {
	c.refs.Add(1)
}

// Release implements driver.EventCallback. The callback is shared between
// the player and the hardware layer; the final release ends its life.
func (c *eventCallback) Release() {
	if c.refs.Add(-1) == 0 {
		c.log.Debug("event callback destroyed", "channel", c.channel.DeviceIndex)
	}
}

// OnInitializationCompleted implements driver.EventCallback.
func (c *eventCallback) OnInitializationCompleted(success bool) {
	if success {
		c.state.Store(int32(media.StatePlaying))
	} else {
		c.state.Store(int32(media.StateError))
	}
}

// OnShutdownCompleted implements driver.EventCallback.
func (c *eventCallback) OnShutdownCompleted() {
	c.state.Store(int32(media.StateClosed))
}

// OnFrameFormatChanged implements driver.EventCallback. A mid-session
// format switch is unrecoverable; the consumer must reopen.
func (c *eventCallback) OnFrameFormatChanged(format driver.FormatInfo) {
	c.log.Error("video format changed",
		"url", c.url,
		"width", format.Width,
		"height", format.Height,
	)
	c.state.Store(int32(media.StateError))
}

// OnFrameReceived implements driver.EventCallback. This is the hot path,
// invoked on the capture thread: it must not block indefinitely and never
// panics across the driver boundary. Log records produced while the
// session lock is held are emitted only after it is released.
func (c *eventCallback) OnFrameReceived(info *driver.FrameInfo) {
	var logs pendingLogs

	c.mu.Lock()
	c.processFrame(info, &logs)
	c.mu.Unlock()

	logs.flush(c.log)
}

// processFrame runs under the session lock.
func (c *eventCallback) processFrame(info *driver.FrameInfo, logs *pendingLogs) {
	p := c.player
	if p == nil {
		return // player detached, delivery is a no-op
	}

	if !info.HasInputSource && len(info.AudioBuffer) == 0 {
		now := c.elapsed()
		if !c.sawNoSignal {
			c.sawNoSignal = true
			c.noSignalSince = now
		}
		if c.receivedValidFrame || now-c.noSignalSince > connectGrace {
			logs.add(slog.LevelError, "no video input", "url", c.url)
			c.state.Store(int32(media.StateError))
		}
		return
	}
	c.receivedValidFrame = c.receivedValidFrame || info.HasInputSource

	decodedTime := c.elapsed()
	decodedTimeF2 := decodedTime + c.rate.Interval()

	if c.mediaState() != media.StatePlaying {
		return // only state transitions matter until init completes
	}

	var decodedTC, decodedTCF2 *media.Timecode

	if info.HasTimecode {
		// The driver flattens high frame rates to a linear timecode, so
		// the frame component must stay below the rate ceiling. Interlaced
		// sources reserve the last count for the second field.
		frameLimit := int(math.Round(c.rate.Float()))
		if info.FieldDominance == driver.Interlaced {
			frameLimit--
		}
		if int(info.Timecode.Frames) >= frameLimit {
			logs.add(slog.LevelWarn, "timecode frame number exceeds frame rate ceiling",
				"url", c.url,
				"frames", info.Timecode.Frames,
				"rate", c.rate.String(),
			)
		}

		tc := media.Timecode{
			Hours:   int(info.Timecode.Hours),
			Minutes: int(info.Timecode.Minutes),
			Seconds: int(info.Timecode.Seconds),
			Frames:  int(info.Timecode.Frames),
		}
		tcF2 := tc.Next()
		decodedTC, decodedTCF2 = &tc, &tcF2

		tcTime := tc.Duration(c.rate)
		if c.syncToTimecode {
			decodedTime = tcTime
			decodedTimeF2 = tcTime + c.rate.Interval()
		}

		c.prevTimecode = tc
		c.hasPrevTimecode = true

		if c.logTimecode {
			logs.add(slog.LevelInfo, "timecode", "url", c.url, "tc", tc.String())
		}
	} else if !c.warnedMissingTimecode && c.timecodeExpected {
		c.warnedMissingTimecode = true
		logs.add(slog.LevelWarn, "expected timecode but none received", "url", c.url)
	}

	if len(info.AudioBuffer) > 0 {
		c.processAudio(p, info, decodedTime, decodedTC)
	}

	if len(info.CCData) > 0 {
		c.processCaptions(p, info.CCData, decodedTime)
	}

	if len(info.VideoBuffer) > 0 {
		c.processVideo(p, info, decodedTime, decodedTimeF2, decodedTC, decodedTCF2, logs)
	}
}

func (c *eventCallback) processAudio(p *Player, info *driver.FrameInfo, decodedTime time.Duration, tc *media.Timecode) {
	if p.samples.NumAudioSamples() >= c.maxAudioFrames*toleratedOverflowFactor {
		c.audioDrops.Add(1)
		return
	}

	sample := p.audioPool.Acquire()
	if !sample.Init(info.AudioBuffer, info.NumAudioChannels, info.AudioRate, decodedTime, tc) {
		sample.Release()
		return
	}
	p.samples.AddAudio(sample)

	c.lastBitsPerSample = nativeBitsPerSample
	c.lastNumChannels = info.NumAudioChannels
	c.lastSampleRate = info.AudioRate
}

func (c *eventCallback) processCaptions(p *Player, cc []driver.CCData, decodedTime time.Duration) {
	pts := int64(decodedTime.Seconds() * 90000)
	c.enqueueCaptions(p, c.captions.decode(cc, pts))
}

func (c *eventCallback) enqueueCaptions(p *Player, frames []*ccx.CaptionFrame) {
	for _, frame := range frames {
		if p.samples.NumCaptionFrames() >= c.maxCaptionFrames*toleratedOverflowFactor {
			c.captionDrops.Add(1)
			continue
		}
		p.samples.AddCaption(frame)
	}
}

func (c *eventCallback) processVideo(p *Player, info *driver.FrameInfo, decodedTime, decodedTimeF2 time.Duration, tc, tcF2 *media.Timecode, logs *pendingLogs) {
	progressive := info.FieldDominance != driver.Interlaced

	// An interlaced delivery yields two field samples; project occupancy
	// accordingly. The drop counter counts deliveries, not fields: one
	// increment per OnFrameReceived that hits the ceiling.
	projected := p.samples.NumVideoSamples()
	if !progressive {
		projected++
	}
	if projected >= c.maxVideoFrames*toleratedOverflowFactor {
		c.videoDrops.Add(1)
		return
	}

	var format media.SampleFormat
	var encFormat encode.PixelFormat
	switch info.PixelFormat {
	case driver.PixelFormat10BitYUV:
		format = media.FormatV210
		encFormat = encode.FormatV210
	default:
		format = media.FormatUYVY
		encFormat = encode.FormatUYVY
	}

	if rawDumpArmed.CompareAndSwap(true, false) {
		c.dumpRawFrame(format, info)
	}

	if progressive {
		if c.encodeTexel && tc != nil {
			encode.BurnTimecode(encFormat, info.VideoBuffer, info.VideoPitch, info.VideoWidth, info.VideoHeight,
				tc.Hours, tc.Minutes, tc.Seconds, tc.Frames)
		}

		sample := p.videoPool.Acquire()
		if !sample.InitFull(info.VideoBuffer, info.VideoPitch, info.VideoWidth, info.VideoHeight,
			format, decodedTime, c.rate, tc, c.srgbInput) {
			sample.Release()
			return
		}
		p.samples.AddVideo(sample)
		return
	}

	even := p.videoPool.Acquire()
	if even.InitField(true, info.VideoBuffer, info.VideoPitch, info.VideoWidth, info.VideoHeight,
		format, decodedTime, c.rate, tc, c.srgbInput) {
		p.samples.AddVideo(even)
	} else {
		even.Release()
	}

	odd := p.videoPool.Acquire()
	if odd.InitField(false, info.VideoBuffer, info.VideoPitch, info.VideoWidth, info.VideoHeight,
		format, decodedTimeF2, c.rate, tcF2, c.srgbInput) {
		p.samples.AddVideo(odd)
	} else {
		odd.Release()
	}
}

// dumpRawFrame copies the borrowed buffer and writes it off-thread so the
// capture thread never blocks on disk I/O.
func (c *eventCallback) dumpRawFrame(format media.SampleFormat, info *driver.FrameInfo) {
	name := fmt.Sprintf("decklink_capture_%s_ch%d", format, c.channel.DeviceIndex)
	data := append([]byte(nil), info.VideoBuffer...)
	dir := c.rawDumpDir
	log := c.log

	go func() {
		path, err := rawfile.Write(dir, name, data)
		if err != nil {
			log.Error("raw frame dump failed", "error", err)
			return
		}
		log.Info("raw frame dumped", "path", path)
	}()
}

// verifyFrameDropCount runs once per consumer tick, never on the capture
// thread. It prunes queue occupancy above the configured limits, folds in
// the capture-thread drop counters with an atomic exchange-and-reset, and
// returns the per-stream totals lost since the previous call.
func (c *eventCallback) verifyFrameDropCount() (audioLost, videoLost, captionLost int64) {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	if p == nil {
		return 0, 0, 0
	}

	for p.samples.NumAudioSamples() > c.maxAudioFrames {
		s := p.samples.PopAudio()
		if s == nil {
			break
		}
		s.Release()
		audioLost++
	}
	for p.samples.NumVideoSamples() > c.maxVideoFrames {
		s := p.samples.PopVideo()
		if s == nil {
			break
		}
		s.Release()
		videoLost++
	}
	for p.samples.NumCaptionFrames() > c.maxCaptionFrames {
		if p.samples.PopCaption() == nil {
			break
		}
		captionLost++
	}

	audioLost += c.audioDrops.Swap(0)
	videoLost += c.videoDrops.Swap(0)
	captionLost += c.captionDrops.Swap(0)

	c.totalAudioLost.Add(audioLost)
	c.totalVideoLost.Add(videoLost)
	c.totalCaptionLost.Add(captionLost)

	if c.logDropFrames {
		if audioLost > 0 {
			c.log.Warn("lost audio frames: consumer too slow or buffering capacity too small",
				"count", audioLost, "url", c.url)
		}
		if videoLost > 0 {
			c.log.Warn("lost video frames: consumer too slow or buffering capacity too small",
				"count", videoLost, "url", c.url)
		}
		if captionLost > 0 {
			c.log.Warn("lost caption frames: consumer too slow or buffering capacity too small",
				"count", captionLost, "url", c.url)
		}
	}
	return audioLost, videoLost, captionLost
}

// pendingLogs accumulates log records produced while the session lock is
// held, to be emitted after release.
type pendingLogs struct {
	events []logEvent
}

type logEvent struct {
	level slog.Level
	msg   string
	args  []any
}

func (l *pendingLogs) add(level slog.Level, msg string, args ...any) {
	l.events = append(l.events, logEvent{level: level, msg: msg, args: args})
}

func (l *pendingLogs) flush(log *slog.Logger) {
	for _, e := range l.events {
		log.Log(context.Background(), e.level, e.msg, e.args...)
	}
}
