// Package export renders the mix to WAV, caches renders by content
// fingerprint and uploads the result to object storage.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/mixdown"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

// ErrNoUploader is returned when an upload is requested without storage.
var ErrNoUploader = errors.New("no object storage configured")

// Cache stores rendered WAV bytes by fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Uploader puts an object and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Request selects what to do with a render.
type Request struct {
	Name   string // object name stem; the fingerprint when empty
	Upload bool
}

// Result is a finished export.
type Result struct {
	WAV         []byte  `json:"-"`
	Fingerprint string  `json:"fingerprint"`
	Key         string  `json:"key,omitempty"`
	Location    string  `json:"location,omitempty"`
	Cached      bool    `json:"cached"`
	Duration    float64 `json:"duration"`
	Bytes       int     `json:"bytes"`
}

// Options configures an Exporter. Cache and Uploader are optional.
type Options struct {
	Cache    Cache
	Uploader Uploader
	TTL      time.Duration
	Prefix   string // object key prefix
	Logger   *zap.Logger
}

// Exporter is safe for concurrent use; concurrent renders are refused by the
// underlying renderer.
type Exporter struct {
	renderer *mixdown.Renderer
	cache    Cache
	uploader Uploader
	ttl      time.Duration
	prefix   string
	log      *zap.Logger
}

// New creates an exporter around r.
func New(r *mixdown.Renderer, opts Options) *Exporter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Prefix == "" {
		opts.Prefix = "mixes"
	}
	return &Exporter{
		renderer: r,
		cache:    opts.Cache,
		uploader: opts.Uploader,
		ttl:      opts.TTL,
		prefix:   opts.Prefix,
		log:      opts.Logger,
	}
}

// Export renders model, or reuses a cached render of identical content, and
// optionally uploads the WAV.
func (e *Exporter) Export(ctx context.Context, model *timeline.Model, src mixdown.Source, req Request) (*Result, error) {
	if req.Upload && e.uploader == nil {
		return nil, ErrNoUploader
	}

	fp, err := Fingerprint(model, src)
	if err != nil {
		return nil, err
	}
	res := &Result{Fingerprint: fp}

	if e.cache != nil {
		data, ok, err := e.cache.Get(ctx, fp)
		switch {
		case err != nil:
			e.log.Warn("mix cache read failed", zap.String("fingerprint", fp), zap.Error(err))
		case ok:
			res.WAV, res.Cached = data, true
		}
	}

	if res.WAV == nil {
		buf, err := e.renderer.Render(ctx, model, src)
		if err != nil {
			return nil, err
		}
		res.WAV = mixdown.SerializeWAV(buf)
		if e.cache != nil {
			if err := e.cache.Set(ctx, fp, res.WAV, e.ttl); err != nil {
				e.log.Warn("mix cache write failed", zap.String("fingerprint", fp), zap.Error(err))
			}
		}
	}
	res.Bytes = len(res.WAV)
	res.Duration = wavDuration(len(res.WAV))

	if req.Upload {
		res.Key = e.objectKey(req.Name, fp)
		res.Location, err = e.uploader.Upload(ctx, res.Key, res.WAV, "audio/wav")
		if err != nil {
			return nil, fmt.Errorf("upload mix: %w", err)
		}
	}

	e.log.Info("mix exported",
		zap.String("fingerprint", fp),
		zap.Bool("cached", res.Cached),
		zap.Int("bytes", res.Bytes),
		zap.String("location", res.Location))
	return res, nil
}

func (e *Exporter) objectKey(name, fp string) string {
	stem := strings.TrimSpace(name)
	stem = strings.TrimSuffix(stem, ".wav")
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '-'
		}
		return r
	}, stem)
	if stem == "" {
		stem = fp
	}
	return path.Join(e.prefix, stem+".wav")
}

func wavDuration(n int) float64 {
	frameBytes := audio.ExportChannels * audio.BitDepth / 8
	if n <= 44 {
		return 0
	}
	return float64((n-44)/frameBytes) / audio.ExportSampleRate
}

type fingerprintItem struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
	Rate     int     `json:"rate"`
	Frames   int     `json:"frames"`
}

// Fingerprint hashes everything that affects the rendered mix: the model
// and the identity of every referenced item. Items are immutable once
// added, so their ID and shape stand in for their samples.
func Fingerprint(model *timeline.Model, src mixdown.Source) (string, error) {
	seen := make(map[string]bool)
	var items []fingerprintItem
	for _, t := range model.Tracks {
		for _, c := range t.Clips {
			if seen[c.LibraryItemID] {
				continue
			}
			seen[c.LibraryItemID] = true
			fi := fingerprintItem{ID: c.LibraryItemID}
			if item, ok := src.Get(c.LibraryItemID); ok && item.Buffer != nil {
				fi.Duration = item.Duration
				fi.Rate = item.Buffer.SampleRate
				fi.Frames = item.Buffer.Frames()
			}
			items = append(items, fi)
		}
	}

	data, err := json.Marshal(struct {
		Rate  int               `json:"rate"`
		Model *timeline.Model   `json:"model"`
		Items []fingerprintItem `json:"items"`
	}{audio.ExportSampleRate, model, items})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
