// Package playback plays synthesized replies through a host media player.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// waitDelay bounds how long a killed player may hold its output pipes
const waitDelay = 2 * time.Second

// ErrNoPlayer is returned when the configured player binary is missing
var ErrNoPlayer = errors.New("audio player not found")

// Player plays a clip to completion
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// FFplayPlayer pipes clips into ffplay without opening a window
type FFplayPlayer struct {
	command string
}

// NewFFplayPlayer creates a player for the given ffplay binary
func NewFFplayPlayer(command string) *FFplayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFplayPlayer{command: command}
}

// Available reports whether the player binary can be found
func (p *FFplayPlayer) Available() error {
	if _, err := exec.LookPath(p.command); err != nil {
		return fmt.Errorf("%w: %s", ErrNoPlayer, p.command)
	}
	return nil
}

// Play blocks until the clip finishes or ctx is cancelled
func (p *FFplayPlayer) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.command, "-nodisp", "-autoexit", "-loglevel", "error", "-i", "pipe:0")
	cmd.Stdin = bytes.NewReader(clip.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffplay failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffplay failed: %w", err)
	}
	return nil
}
