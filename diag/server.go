// Package diag serves the capture diagnostics REST API over HTTPS and
// HTTP/3: per-channel health snapshots and the one-shot raw frame dump
// command.
package diag

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/decklink/certs"
	"github.com/zsiec/decklink/player"
)

// ChannelLister supplies the current per-channel snapshots. Called on
// every list request; implementations should be cheap.
type ChannelLister func() []player.Snapshot

// Config holds the diagnostics server configuration.
type Config struct {
	Addr     string
	Cert     *certs.CertInfo
	Channels ChannelLister

	// ArmRawDump arms the one-shot raw frame dump. Defaults to
	// player.ArmRawDump.
	ArmRawDump func()
}

// Server is the diagnostics API server. The same handler is served over
// HTTPS (TCP) and HTTP/3 (UDP) on the configured address.
type Server struct {
	log    *slog.Logger
	config Config
}

// NewServer creates a diagnostics Server. It returns an error if required
// fields are missing. If log is nil, slog.Default() is used.
func NewServer(config Config, log *slog.Logger) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("diag: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("diag: Addr is required")
	}
	if config.Channels == nil {
		return nil, errors.New("diag: Channels is required")
	}
	if config.ArmRawDump == nil {
		config.ArmRawDump = player.ArmRawDump
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:    log.With("component", "diag"),
		config: config,
	}, nil
}

// Handler returns the REST API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/channels", s.handleListChannels)
	mux.HandleFunc("GET /api/channels/{index}", s.handleChannel)
	mux.HandleFunc("POST /api/rawdump", s.handleRawDump)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)
	return mux
}

func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Channels())
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad channel index")
		return
	}
	for _, snap := range s.config.Channels() {
		if snap.Device == index {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("no channel %d", index))
}

func (s *Server) handleRawDump(w http.ResponseWriter, _ *http.Request) {
	s.config.ArmRawDump()
	s.log.Info("raw dump armed")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "armed"})
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": s.config.Cert.FingerprintBase64(),
		"addr": s.config.Addr,
	})
}

// Start serves the API over HTTPS and HTTP/3 until the context is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{s.config.Cert.TLSCert},
	}

	h3 := &http3.Server{
		Addr:      s.config.Addr,
		Handler:   s.Handler(),
		TLSConfig: tlsConfig,
		QUICConfig: &quic.Config{
			MaxIdleTimeout: 30 * time.Second,
		},
	}

	httpsSrv := &http.Server{
		Addr:      s.config.Addr,
		Handler:   altSvcMiddleware(h3, s.Handler()),
		TLSConfig: tlsConfig,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("diag: HTTPS server: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := h3.ListenAndServe(); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("diag: HTTP/3 server: %w", err)
			return
		}
		errCh <- nil
	}()

	s.log.Info("diagnostics API listening", "addr", s.config.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpsSrv.Shutdown(shutdownCtx)
		_ = h3.Close()
		return nil
	case err := <-errCh:
		_ = h3.Close()
		return err
	}
}

// altSvcMiddleware advertises the HTTP/3 endpoint on HTTPS responses.
func altSvcMiddleware(h3 *http3.Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h3.SetQUICHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
