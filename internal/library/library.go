// Package library keeps the decoded source assets that clips reference.
package library

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

const (
	DefaultTolerance = 0.01 // seconds; two imports closer than this are the same asset
	PeakPoints       = 200
)

// Item types.
const (
	TypeVoice     = "voice"
	TypeInterview = "interview"
	TypeAmbiance  = "ambiance"
	TypeMusic     = "music"
	TypeGeneric   = "generic"
)

// Item is an immutable decoded asset.
type Item struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Duration float64       `json:"duration"`
	Type     string        `json:"type"`
	Peaks    []Peak        `json:"peaks,omitempty"`
	Buffer   *audio.Buffer `json:"-"`
}

// DecodeError reports input that could not be turned into audio.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder is the subset of audio.Decoder the library needs.
type Decoder interface {
	Decode(ctx context.Context, raw []byte) (*audio.Buffer, error)
}

// Library is safe for concurrent use.
type Library struct {
	decoder   Decoder
	tolerance float64
	log       *zap.Logger

	mu    sync.RWMutex
	items map[string]*Item
	order []string
}

// New creates an empty library. A non-positive tolerance uses DefaultTolerance.
func New(decoder Decoder, tolerance float64, log *zap.Logger) *Library {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{
		decoder:   decoder,
		tolerance: tolerance,
		log:       log,
		items:     make(map[string]*Item),
	}
}

// Decode turns raw bytes into an item without adding it.
func (l *Library) Decode(ctx context.Context, raw []byte, name string) (*Item, error) {
	if l.decoder == nil {
		return nil, &DecodeError{Name: name, Err: audio.ErrUnsupportedFormat}
	}
	buf, err := l.decoder.Decode(ctx, raw)
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	if buf.Frames() == 0 {
		return nil, &DecodeError{Name: name, Err: fmt.Errorf("no audio frames")}
	}
	return NewItem(name, buf, DetectType(name)), nil
}

// NewItem wraps an already decoded buffer.
func NewItem(name string, buf *audio.Buffer, typ string) *Item {
	if typ == "" {
		typ = TypeGeneric
	}
	return &Item{
		ID:       uuid.NewString(),
		Name:     name,
		Duration: buf.Duration(),
		Type:     typ,
		Peaks:    ComputePeaks(buf, PeakPoints),
		Buffer:   buf,
	}
}

// Add inserts item unless one with the same name and duration already
// exists, in which case the existing item is returned.
func (l *Library) Add(item *Item) (*Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.order {
		existing := l.items[id]
		if existing.Name == item.Name && math.Abs(existing.Duration-item.Duration) < l.tolerance {
			l.log.Debug("library item deduplicated", zap.String("name", item.Name), zap.String("item", existing.ID))
			return existing, true
		}
	}
	l.items[item.ID] = item
	l.order = append(l.order, item.ID)
	l.log.Info("library item added",
		zap.String("item", item.ID),
		zap.String("name", item.Name),
		zap.Float64("duration", item.Duration),
		zap.String("type", item.Type))
	return item, false
}

// Import decodes raw and adds it. The bool reports a dedupe hit.
func (l *Library) Import(ctx context.Context, raw []byte, name string) (*Item, bool, error) {
	item, err := l.Decode(ctx, raw, name)
	if err != nil {
		return nil, false, err
	}
	added, dup := l.Add(item)
	return added, dup, nil
}

// Get looks up an item.
func (l *Library) Get(id string) (*Item, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.items[id]
	return item, ok
}

// Items returns every item in insertion order.
func (l *Library) Items() []*Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Item, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.items[id])
	}
	return out
}

// Len returns the item count.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Remove drops an item. Callers are responsible for clips referencing it.
func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[id]; !ok {
		return false
	}
	delete(l.items, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear empties the library.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = make(map[string]*Item)
	l.order = nil
}

// Restore replaces the contents with items, keeping their IDs.
func (l *Library) Restore(items []*Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = make(map[string]*Item, len(items))
	l.order = make([]string, 0, len(items))
	for _, item := range items {
		l.items[item.ID] = item
		l.order = append(l.order, item.ID)
	}
}

// DetectType guesses an item type from keywords in the file name.
func DetectType(filename string) string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	switch {
	case strings.Contains(base, "voix") || strings.Contains(base, "voice"):
		return TypeVoice
	case strings.Contains(base, "interview") || strings.Contains(base, "itw"):
		return TypeInterview
	case strings.Contains(base, "ambiance") || strings.Contains(base, "amb"):
		return TypeAmbiance
	case strings.Contains(base, "musique") || strings.Contains(base, "music"):
		return TypeMusic
	default:
		return TypeGeneric
	}
}
