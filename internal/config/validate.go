package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEditor(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateCache()
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen must be set")
	}
	return nil
}

func (c *Config) validateEditor() error {
	if len(c.Editor.TrackNames) == 0 {
		return errors.New("editor.track_names must name at least one track")
	}
	if !positive(c.Editor.Duration) {
		return errors.New("editor.duration must be a positive number of seconds")
	}
	if !positive(c.Editor.Grid) {
		return errors.New("editor.grid must be a positive number of seconds")
	}
	if c.Editor.HistoryLimit < 1 {
		return errors.New("editor.history_limit must be at least 1")
	}
	if !positive(c.Editor.DedupeTolerance) {
		return errors.New("editor.dedupe_tolerance must be positive")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.ExportSampleRate < 8000 || c.Audio.ExportSampleRate > 192000 {
		return fmt.Errorf("audio.export_sample_rate %d out of range 8000-192000", c.Audio.ExportSampleRate)
	}
	if c.Audio.ExportChannels < 1 || c.Audio.ExportChannels > 2 {
		return fmt.Errorf("audio.export_channels must be 1 or 2, got %d", c.Audio.ExportChannels)
	}
	if c.Audio.MP3Bitrate <= 0 {
		return errors.New("audio.mp3_bitrate must be positive")
	}
	if c.Audio.OpusBitrate < 6000 || c.Audio.OpusBitrate > 510000 {
		return fmt.Errorf("audio.opus_bitrate %d out of range 6000-510000", c.Audio.OpusBitrate)
	}
	if c.Audio.ListenerBuffer < 1 {
		return errors.New("audio.listener_buffer must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Storage.Endpoint) == "" {
		return errors.New("storage.endpoint must be set when storage.enabled is true")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket must be set when storage.enabled is true")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Cache.Addr) == "" {
		return errors.New("cache.addr must be set when cache.enabled is true")
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("cache.ttl_seconds must be positive")
	}
	return nil
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
