// Command deckplay runs a capture session against the SRT software
// backend: it opens a player per configured channel, drives the tick loop
// at the video frame rate, and serves the diagnostics API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/decklink/certs"
	"github.com/zsiec/decklink/diag"
	"github.com/zsiec/decklink/driver"
	srtcapture "github.com/zsiec/decklink/driver/srt"
	"github.com/zsiec/decklink/media"
	"github.com/zsiec/decklink/player"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srtAddr := envOr("SRT_ADDR", ":6000")
	diagAddr := envOr("DIAG_ADDR", ":4444")
	device := envInt("DEVICE", 0)
	fps := envInt("FPS", 30)

	slog.Info("deckplay starting",
		"version", version,
		"srt", srtAddr,
		"diag", diagAddr,
		"device", device,
		"cert_hash", cert.FingerprintBase64(),
	)

	backend := srtcapture.NewBackend(srtAddr, nil)

	sink := &logSink{log: slog.With("component", "sink")}
	p := player.New(sink, backend, nil)

	opts := player.Options{
		DeviceIndex:           device,
		CaptureVideo:          true,
		CaptureAudio:          os.Getenv("AUDIO") != "",
		TimecodeFormat:        driver.TimecodeVITC,
		FrameRate:             media.FrameRate{Num: fps, Den: 1},
		LogDropFrames:         true,
		EncodeTimecodeInTexel: os.Getenv("BURN_TC") != "",
	}
	url := "decklink://ch" + strconv.Itoa(device)
	if err := p.Open(url, opts); err != nil {
		slog.Error("open failed", "url", url, "error", err)
		os.Exit(1)
	}

	diagSrv, err := diag.NewServer(diag.Config{
		Addr: diagAddr,
		Cert: cert,
		Channels: func() []player.Snapshot {
			return []player.Snapshot{p.Snapshot()}
		},
	}, nil)
	if err != nil {
		slog.Error("failed to create diagnostics server", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return backend.Start(ctx)
	})

	g.Go(func() error {
		return diagSrv.Start(ctx)
	})

	g.Go(func() error {
		defer p.Close()
		ticker := time.NewTicker(opts.FrameRate.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.TickInput()
				p.TickFetch()
				drain(p)
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// drain consumes queued samples, standing in for the render and audio
// pipelines a host application would attach.
func drain(p *player.Player) {
	for {
		v := p.Samples().PopVideo()
		if v == nil {
			break
		}
		slog.Debug("video sample", "time", v.Time, "field", v.Field.String(), "bytes", len(v.Data))
		v.Release()
	}
	for {
		a := p.Samples().PopAudio()
		if a == nil {
			break
		}
		slog.Debug("audio sample", "time", a.Time, "samples", len(a.Data))
		a.Release()
	}
	for {
		c := p.Samples().PopCaption()
		if c == nil {
			break
		}
		slog.Info("caption", "channel", c.Channel, "text", c.Text)
	}
}

type logSink struct {
	log *slog.Logger
}

func (s *logSink) ReceiveMediaEvent(e player.Event) {
	s.log.Info("media event", "event", e.String())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
