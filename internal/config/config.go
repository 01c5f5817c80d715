// Package config loads mixdesk settings: defaults, then an optional TOML
// file, then a .env file, then MIXDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "mixdesk.toml"

type Server struct {
	Listen     string   `toml:"listen"`
	ICEServers []string `toml:"ice_servers"`
}

type Editor struct {
	TrackNames      []string `toml:"track_names"`
	Duration        float64  `toml:"duration"` // nominal timeline length, seconds
	Grid            float64  `toml:"grid"`     // snap resolution, seconds
	Snap            bool     `toml:"snap"`
	HistoryLimit    int      `toml:"history_limit"`
	DedupeTolerance float64  `toml:"dedupe_tolerance"` // seconds
}

type Audio struct {
	ExportSampleRate int    `toml:"export_sample_rate"`
	ExportChannels   int    `toml:"export_channels"`
	FFmpegPath       string `toml:"ffmpeg_path"`
	MP3Bitrate       int    `toml:"mp3_bitrate"`  // kbps
	OpusBitrate      int    `toml:"opus_bitrate"` // bps
	ListenerBuffer   int    `toml:"listener_buffer"`
	CaptureFormat    string `toml:"capture_format"` // ffmpeg -f, e.g. pulse, alsa, avfoundation
	CaptureInput     string `toml:"capture_input"`  // ffmpeg -i; capture is disabled when empty
}

type Logging struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // json or console
	File       string `toml:"file"`   // rotated with lumberjack when set
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type Session struct {
	Path     string `toml:"path"`
	LockPath string `toml:"lock_path"`
}

type Storage struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

type Cache struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// TTL returns the cache lifetime.
func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Config holds all runtime configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Editor  Editor  `toml:"editor"`
	Audio   Audio   `toml:"audio"`
	Logging Logging `toml:"logging"`
	Session Session `toml:"session"`
	Storage Storage `toml:"storage"`
	Cache   Cache   `toml:"cache"`
}

// Load builds the configuration. An explicit path must exist; with an empty
// path DefaultConfigFile is used if present. A .env file in the working
// directory is loaded without overriding variables already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Listen = envStr("MIXDESK_LISTEN", c.Server.Listen)
	c.Server.ICEServers = envList("MIXDESK_ICE_SERVERS", c.Server.ICEServers)

	c.Editor.TrackNames = envList("MIXDESK_TRACK_NAMES", c.Editor.TrackNames)
	c.Editor.Duration = envFloat("MIXDESK_DURATION", c.Editor.Duration)
	c.Editor.Grid = envFloat("MIXDESK_GRID", c.Editor.Grid)
	c.Editor.Snap = envBool("MIXDESK_SNAP", c.Editor.Snap)
	c.Editor.HistoryLimit = envInt("MIXDESK_HISTORY_LIMIT", c.Editor.HistoryLimit)
	c.Editor.DedupeTolerance = envFloat("MIXDESK_DEDUPE_TOLERANCE", c.Editor.DedupeTolerance)

	c.Audio.ExportSampleRate = envInt("MIXDESK_EXPORT_SAMPLE_RATE", c.Audio.ExportSampleRate)
	c.Audio.ExportChannels = envInt("MIXDESK_EXPORT_CHANNELS", c.Audio.ExportChannels)
	c.Audio.FFmpegPath = envStr("MIXDESK_FFMPEG", c.Audio.FFmpegPath)
	c.Audio.MP3Bitrate = envInt("MIXDESK_MP3_BITRATE", c.Audio.MP3Bitrate)
	c.Audio.OpusBitrate = envInt("MIXDESK_OPUS_BITRATE", c.Audio.OpusBitrate)
	c.Audio.ListenerBuffer = envInt("MIXDESK_LISTENER_BUFFER", c.Audio.ListenerBuffer)
	c.Audio.CaptureFormat = envStr("MIXDESK_CAPTURE_FORMAT", c.Audio.CaptureFormat)
	c.Audio.CaptureInput = envStr("MIXDESK_CAPTURE_INPUT", c.Audio.CaptureInput)

	c.Logging.Level = envStr("MIXDESK_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envStr("MIXDESK_LOG_FORMAT", c.Logging.Format)
	c.Logging.File = envStr("MIXDESK_LOG_FILE", c.Logging.File)

	c.Session.Path = envStr("MIXDESK_SESSION_DB", c.Session.Path)
	c.Session.LockPath = envStr("MIXDESK_SESSION_LOCK", c.Session.LockPath)

	c.Storage.Enabled = envBool("MIXDESK_STORAGE_ENABLED", c.Storage.Enabled)
	c.Storage.Endpoint = envStr("MIXDESK_MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = envStr("MIXDESK_MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = envStr("MIXDESK_MINIO_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = envStr("MIXDESK_MINIO_BUCKET", c.Storage.Bucket)
	c.Storage.Region = envStr("MIXDESK_MINIO_REGION", c.Storage.Region)
	c.Storage.UseSSL = envBool("MIXDESK_MINIO_USE_SSL", c.Storage.UseSSL)

	c.Cache.Enabled = envBool("MIXDESK_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Addr = envStr("MIXDESK_REDIS_ADDR", c.Cache.Addr)
	c.Cache.Password = envStr("MIXDESK_REDIS_PASSWORD", c.Cache.Password)
	c.Cache.DB = envInt("MIXDESK_REDIS_DB", c.Cache.DB)
	c.Cache.TTLSeconds = envInt("MIXDESK_CACHE_TTL", c.Cache.TTLSeconds)
}
