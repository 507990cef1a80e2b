// Package pbx talks to the local Asterisk instance through its remote
// console (`asterisk -rx "<command>"`). This is the only control surface the
// dispatch backend uses: it never speaks SIP itself.
package pbx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ErrTransport marks a control command that never ran to completion: the
// binary could not be spawned or the configured timeout elapsed. It is
// distinct from a command that ran and reported failure.
var ErrTransport = errors.New("pbx control transport failure")

// ChannelLister returns the raw live-channel listing from the PBX.
type ChannelLister interface {
	Channels(ctx context.Context) (string, error)
}

// Hangupper issues a termination directive for a full channel identifier.
type Hangupper interface {
	Hangup(ctx context.Context, channel string) error
}

// Client executes Asterisk remote-console commands with a bounded runtime.
type Client struct {
	bin     string
	timeout time.Duration
}

// NewClient creates a control client for the given asterisk binary. Every
// command is bounded by timeout regardless of the caller's context.
func NewClient(bin string, timeout time.Duration) *Client {
	return &Client{bin: bin, timeout: timeout}
}

// Channels runs `core show channels concise` and returns its raw output.
// Each line of the output is one channel record with `!`-separated fields.
func (c *Client) Channels(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "core show channels concise")
	if err != nil {
		return "", err
	}
	return out, nil
}

// Hangup runs `channel request hangup <channel>` for the full channel
// identifier. A non-zero exit is a command failure, not a transport failure.
func (c *Client) Hangup(ctx context.Context, channel string) error {
	_, err := c.run(ctx, "channel request hangup "+channel)
	return err
}

// run executes one remote-console command under the client timeout.
func (c *Client) run(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.bin, "-rx", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("pbx control command timed out", "command", command, "timeout", c.timeout)
			return "", fmt.Errorf("%w: %s: %v", ErrTransport, command, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("pbx command %q failed: %w: %s", command, err, out)
		}
		// Spawn failure (missing binary, permissions).
		return "", fmt.Errorf("%w: %s: %v", ErrTransport, command, err)
	}
	return string(out), nil
}
