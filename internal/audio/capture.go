package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// FFmpegCapture records from a local input device by running FFmpeg into a
// temporary WAV file. Format and Input are FFmpeg's -f and -i values
// (e.g. "pulse"/"default", "avfoundation"/":0").
type FFmpegCapture struct {
	Path       string
	Format     string
	Input      string
	SampleRate int

	mu      sync.Mutex
	cmd     *exec.Cmd
	file    string
	started time.Time
	done    chan error
}

// Start launches the recorder. It fails if a take is already running.
func (c *FFmpegCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return errors.New("capture already running")
	}
	if c.Path == "" || c.Format == "" || c.Input == "" {
		return errors.New("capture device not configured")
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = ExportSampleRate
	}

	dir, err := os.MkdirTemp("", "mixdesk-take-*")
	if err != nil {
		return fmt.Errorf("create take dir: %w", err)
	}
	file := filepath.Join(dir, "take.wav")

	// Not tied to ctx: the request that starts a take ends long before the take does.
	cmd := exec.Command(c.Path,
		"-f", c.Format,
		"-i", c.Input,
		"-ac", "2",
		"-ar", strconv.Itoa(rate),
		"-acodec", "pcm_s16le",
		"-loglevel", "error",
		"-y", file,
	)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("start ffmpeg capture: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	c.cmd = cmd
	c.file = file
	c.started = time.Now()
	c.done = done
	return nil
}

// Stop interrupts FFmpeg so it finalises the WAV header, then returns the
// recorded bytes.
func (c *FFmpegCapture) Stop(ctx context.Context) (Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil {
		return Recording{}, errors.New("capture not running")
	}
	cmd, file, done := c.cmd, c.file, c.done
	elapsed := time.Since(c.started).Seconds()
	c.cmd = nil
	defer os.RemoveAll(filepath.Dir(file))

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		cmd.Process.Kill()
	}
	select {
	case <-done:
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return Recording{}, ctx.Err()
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		<-done
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return Recording{}, fmt.Errorf("read take: %w", err)
	}
	return Recording{
		Data:     data,
		Name:     "take.wav",
		Duration: elapsed,
	}, nil
}
