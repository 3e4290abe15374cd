package atcmd

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/supby/lorae5/internal/logger"
)

const (
	Prefix     = "AT"
	Terminator = "\r\n"

	DefaultSettleDelay  = 300 * time.Millisecond
	DefaultPollInterval = time.Second
)

var ErrPollTimeout = errors.New("polling timed out")

type PollOptions struct {
	Interval time.Duration
	// Timeout and MaxPolls bound the polling; zero disables that bound.
	Timeout  time.Duration
	MaxPolls int
}

// Driver writes AT commands and leaves reading the answer to the caller. The
// settle delay after each write is the only flow control the module gets.
type Driver struct {
	transport   Transport
	settleDelay time.Duration
	logger      logger.Logger
}

func New(transport Transport, settleDelay time.Duration, log logger.Logger) *Driver {
	if settleDelay < 0 {
		settleDelay = DefaultSettleDelay
	}

	return &Driver{
		transport:   transport,
		settleDelay: settleDelay,
		logger:      log,
	}
}

func Format(cmd string) string {
	return Prefix + cmd + Terminator
}

func (d *Driver) Send(cmd string) error {
	line := Format(cmd)
	d.logger.Debug("TX %q", line)

	if err := d.transport.WriteLine(line); err != nil {
		return errors.Wrapf(err, "send %v%v", Prefix, cmd)
	}

	time.Sleep(d.settleDelay)

	return nil
}

func (d *Driver) Receive() (string, error) {
	data, err := d.transport.Receive()
	if err != nil {
		return "", err
	}
	if data != "" {
		d.logger.Debug("RX %q", data)
	}

	return data, nil
}

func (d *Driver) Exchange(cmd string) (string, error) {
	if err := d.Send(cmd); err != nil {
		return "", err
	}

	return d.Receive()
}

// Poll receives every opts.Interval and passes what arrived to check until
// check reports done or fails. Exhausting opts.Timeout or opts.MaxPolls
// returns an error wrapping ErrPollTimeout.
func (d *Driver) Poll(ctx context.Context, opts PollOptions, check func(data string) (bool, error)) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}

	start := time.Now()
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		data, err := d.Receive()
		if err != nil {
			return err
		}

		done, err := check(data)
		if err != nil || done {
			return err
		}

		if opts.MaxPolls > 0 && polls >= opts.MaxPolls {
			return pollTimeout(polls, start)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return pollTimeout(polls, start)
		case <-ticker.C:
		}
	}
}

func pollTimeout(polls int, start time.Time) error {
	return errors.Wrapf(ErrPollTimeout, "gave up after %d polls in %v", polls, time.Since(start).Round(time.Millisecond))
}
