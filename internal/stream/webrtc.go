package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus preview.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	bitrate     int // bits per second
	iceServers  []string
	log         *zap.Logger

	mu    sync.Mutex
	peers []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler. A non-positive bitrate
// means 128 kbps.
func NewWebRTCHandler(b *Broadcaster, bitrate int, iceServers []string, log *zap.Logger) *WebRTCHandler {
	if bitrate <= 0 {
		bitrate = 128000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebRTCHandler{
		broadcaster: b,
		bitrate:     bitrate,
		iceServers:  iceServers,
		log:         log,
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) config() webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(h.iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: h.iceServers}}
	}
	return cfg
}

// negotiateError carries the HTTP status for a failed negotiation step.
type negotiateError struct {
	status int
	step   string
	err    error
}

func (e *negotiateError) Error() string { return e.step + ": " + e.err.Error() }
func (e *negotiateError) Unwrap() error { return e.err }

// ServeHTTP answers a JSON SDP offer with the local description once ICE
// gathering is complete, then streams the preview to the new peer.
func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, err := h.negotiate(offer)
	if err != nil {
		var ne *negotiateError
		status := http.StatusInternalServerError
		if errors.As(err, &ne) {
			status = ne.status
		}
		h.log.Warn("webrtc negotiation failed", zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	n := len(h.peers)
	h.mu.Unlock()
	h.log.Info("webrtc peer connected", zap.Int("peers", n))

	listener := h.broadcaster.Subscribe()
	go h.streamToPeer(listener, track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			if h.removePeer(pc) {
				h.broadcaster.Unsubscribe(listener)
				_ = pc.Close()
				h.log.Info("webrtc peer disconnected", zap.Int("peers", h.PeerCount()))
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pc.LocalDescription())
}

// negotiate builds a peer connection with one Opus track and applies offer.
// The connection is closed on failure.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	pc, err := webrtc.NewPeerConnection(h.config())
	if err != nil {
		return nil, nil, &negotiateError{http.StatusInternalServerError, "create peer connection", err}
	}
	fail := func(status int, step string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
		_ = pc.Close()
		return nil, nil, &negotiateError{status, step, err}
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"mixdesk-preview",
	)
	if err != nil {
		return fail(http.StatusInternalServerError, "create audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, "add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, "create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, "set local description", err)
	}
	<-gathered
	return pc, track, nil
}

func (h *WebRTCHandler) streamToPeer(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.PreviewSampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.Error("opus encoder", zap.Error(err))
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		h.log.Warn("opus bitrate", zap.Int("bitrate", h.bitrate), zap.Error(err))
	}

	opusBuf := make([]byte, 4000)

	for {
		select {
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				h.log.Warn("opus encode", zap.Error(err))
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// removePeer reports whether pc was still registered.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return true
		}
	}
	return false
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = nil
	h.mu.Unlock()
	for _, pc := range peers {
		pc.Close()
	}
}
