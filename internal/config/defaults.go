package config

const (
	defaultListen          = "127.0.0.1:8080"
	defaultDuration        = 60.0
	defaultGrid            = 0.1
	defaultHistoryLimit    = 50
	defaultDedupeTolerance = 0.01
	defaultExportRate      = 44100
	defaultExportChannels  = 2
	defaultFFmpeg          = "ffmpeg"
	defaultMP3Bitrate      = 192
	defaultOpusBitrate     = 128000
	defaultListenerBuffer  = 150 // ~3 seconds at 20ms/frame
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultSessionPath     = "data/sessions.db"
	defaultBucket          = "mixdesk"
	defaultRegion          = "us-east-1"
	defaultPrefix          = "mixes"
	defaultRedisAddr       = "localhost:6379"
	defaultCacheTTLSeconds = 3600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{Listen: defaultListen},
		Editor: Editor{
			TrackNames:      []string{"Voix", "Interview", "Ambiance", "Musique"},
			Duration:        defaultDuration,
			Grid:            defaultGrid,
			Snap:            true,
			HistoryLimit:    defaultHistoryLimit,
			DedupeTolerance: defaultDedupeTolerance,
		},
		Audio: Audio{
			ExportSampleRate: defaultExportRate,
			ExportChannels:   defaultExportChannels,
			FFmpegPath:       defaultFFmpeg,
			MP3Bitrate:       defaultMP3Bitrate,
			OpusBitrate:      defaultOpusBitrate,
			ListenerBuffer:   defaultListenerBuffer,
			CaptureFormat:    "pulse",
		},
		Logging: Logging{
			Level:      defaultLogLevel,
			Format:     defaultLogFormat,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Session: Session{Path: defaultSessionPath},
		Storage: Storage{
			Bucket: defaultBucket,
			Region: defaultRegion,
			Prefix: defaultPrefix,
		},
		Cache: Cache{
			Addr:       defaultRedisAddr,
			TTLSeconds: defaultCacheTTLSeconds,
		},
	}
}
