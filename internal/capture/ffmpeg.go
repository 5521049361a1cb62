package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// FFmpegConfig describes how the microphone is captured
type FFmpegConfig struct {
	Command     string // ffmpeg binary
	InputFormat string // pulse, alsa, avfoundation, dshow
	InputDevice string
	Bitrate     string // MP3 bitrate, e.g. 128k
	SampleRate  int
}

// FFmpegSource records the microphone to MP3 with an ffmpeg subprocess
type FFmpegSource struct {
	cfg FFmpegConfig

	// startupGrace is how long Start waits for ffmpeg to fail fast
	startupGrace time.Duration
	stopTimeout  time.Duration
}

// NewFFmpegSource fills in defaults for unset fields
func NewFFmpegSource(cfg FFmpegConfig) *FFmpegSource {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "128k"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	return &FFmpegSource{
		cfg:          cfg,
		startupGrace: 250 * time.Millisecond,
		stopTimeout:  1200 * time.Millisecond,
	}
}

// Probe resolves microphone availability: Unsupported without an ffmpeg
// binary, Denied when a short test capture of the input device fails.
func (s *FFmpegSource) Probe(ctx context.Context) Availability {
	if _, err := exec.LookPath(s.cfg.Command); err != nil {
		return Unsupported
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.Command,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-f", s.cfg.InputFormat,
		"-i", s.cfg.InputDevice,
		"-t", "0.2",
		"-f", "null", "-",
	)
	if err := cmd.Run(); err != nil {
		return Denied
	}
	return Available
}

func (s *FFmpegSource) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.cfg.InputFormat,
		"-i", s.cfg.InputDevice,
		"-ac", "1",
		"-ar", fmt.Sprint(s.cfg.SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", s.cfg.Bitrate,
		"-f", "mp3",
		"-",
	}
}

// Start launches ffmpeg. The process is not bound to ctx: a recording
// outlives the request that started it and ends on Finish or Abort.
func (s *FFmpegSource) Start(ctx context.Context) (Session, error) {
	cmd := exec.Command(s.cfg.Command, s.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	sess := &ffmpegSession{
		process:     cmd.Process,
		stderr:      &stderr,
		waitErr:     make(chan error, 1),
		copyDone:    make(chan struct{}),
		started:     time.Now(),
		stopTimeout: s.stopTimeout,
	}
	go func() {
		_, _ = io.Copy(&sess.data, stdout)
		close(sess.copyDone)
	}()
	go func() {
		<-sess.copyDone
		sess.waitErr <- cmd.Wait()
		close(sess.waitErr)
	}()

	select {
	case err := <-sess.waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(s.startupGrace):
	case <-ctx.Done():
		_ = sess.Abort()
		return nil, ctx.Err()
	}

	return sess, nil
}

type ffmpegSession struct {
	process     *os.Process
	stderr      *bytes.Buffer
	data        bytes.Buffer
	waitErr     chan error
	copyDone    chan struct{}
	started     time.Time
	stopTimeout time.Duration

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) stop() error {
	s.stopOnce.Do(func() {
		// SIGINT lets ffmpeg flush the last MP3 frames
		_ = s.process.Signal(os.Interrupt)

		var err error
		select {
		case err = <-s.waitErr:
		case <-time.After(s.stopTimeout):
			_ = s.process.Kill()
			err = <-s.waitErr
		}
		s.stopErr = normalizeStopErr(err)
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

// Finish stops ffmpeg and returns the MP3 it produced
func (s *ffmpegSession) Finish(ctx context.Context) (audio.Clip, error) {
	duration := time.Since(s.started)
	if err := s.stop(); err != nil {
		return audio.Clip{}, err
	}
	if s.data.Len() == 0 {
		return audio.Clip{}, errors.New("ffmpeg produced no audio")
	}
	return audio.Clip{
		Data:     bytes.Clone(s.data.Bytes()),
		MIMEType: audio.MIMETypeMPEG,
		Duration: duration,
	}, nil
}

// Abort stops ffmpeg and drops the recording
func (s *ffmpegSession) Abort() error {
	err := s.stop()
	s.data.Reset()
	return err
}

// normalizeStopErr treats a non-zero exit after SIGINT as a clean stop
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
