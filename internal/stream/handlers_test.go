package stream

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestWebRTCRejectsBadOffers(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(0, nil), 0, nil, nil)
	defer h.Close()

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "v=0", http.StatusBadRequest},
		{"empty sdp", http.MethodPost, `{"type":"offer","sdp":""}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/offer", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if got := h.PeerCount(); got != 0 {
		t.Errorf("PeerCount = %d, want 0", got)
	}
}

func TestHTTPStreamWithoutEncoder(t *testing.T) {
	b := NewBroadcaster(0, nil)
	missing := filepath.Join(t.TempDir(), "no-such-ffmpeg")
	h := NewHTTPHandler(b, missing, 0, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := b.ListenerCount(); got != 0 {
		t.Errorf("ListenerCount = %d, want 0", got)
	}
}

func TestEncoderArgsCarryBitrate(t *testing.T) {
	h := NewHTTPHandler(NewBroadcaster(0, nil), "", 0, nil)
	if h.ffmpeg != "ffmpeg" {
		t.Errorf("default ffmpeg = %q, want ffmpeg", h.ffmpeg)
	}
	args := strings.Join(h.encoderArgs(), " ")
	if !strings.Contains(args, "-b:a 192k") {
		t.Errorf("args %q missing default bitrate", args)
	}
}
