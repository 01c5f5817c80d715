package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

// HTTPHandler serves the preview as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	ffmpeg      string
	bitrate     int // kbps
	log         *zap.Logger
}

// NewHTTPHandler creates an HTTP stream handler. Empty ffmpegPath means
// "ffmpeg" from PATH; a non-positive bitrate means 192 kbps.
func NewHTTPHandler(b *Broadcaster, ffmpegPath string, bitrate int, log *zap.Logger) *HTTPHandler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if bitrate <= 0 {
		bitrate = 192
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{broadcaster: b, ffmpeg: ffmpegPath, bitrate: bitrate, log: log}
}

// encoderArgs pipes s16le preview PCM in and MP3 out.
func (h *HTTPHandler) encoderArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.PreviewSampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(h.bitrate) + "k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.ffmpeg, h.encoderArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Error("http stream stdin pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Error("http stream stdout pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.log.Error("http stream encoder start", zap.String("ffmpeg", h.ffmpeg), zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "mixdesk preview")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)
	h.log.Info("http listener connected", zap.Int("listeners", h.broadcaster.ListenerCount()))

	go h.feed(ctx, listener, stdin)

	written, err := io.Copy(flushWriter{w, flusher}, stdout)
	if err != nil && ctx.Err() == nil {
		h.log.Warn("http stream ended", zap.Error(err))
	}
	cancel()
	_ = cmd.Wait()
	h.log.Info("http listener disconnected", zap.Int64("bytes", written))
}

// feed writes listener frames into the encoder until either side stops.
func (h *HTTPHandler) feed(ctx context.Context, listener *Listener, stdin io.WriteCloser) {
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
