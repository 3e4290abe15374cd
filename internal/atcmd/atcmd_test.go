package atcmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supby/lorae5/internal/logger"
)

type scriptedTransport struct {
	written  []string
	received []string
	err      error
}

func (s *scriptedTransport) WriteLine(line string) error {
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, line)
	return nil
}

func (s *scriptedTransport) Receive() (string, error) {
	if len(s.received) == 0 {
		return "", nil
	}
	data := s.received[0]
	s.received = s.received[1:]
	return data, nil
}

func newDriver(tr *scriptedTransport) *Driver {
	return New(tr, 0, logger.GetLogger("[test]", logger.LogLevelError))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "AT\r\n", Format(""))
	assert.Equal(t, "AT+ID=DevEui\r\n", Format("+ID=DevEui"))
}

func TestSendWritesFramedCommand(t *testing.T) {
	tr := &scriptedTransport{}
	d := newDriver(tr)

	require.NoError(t, d.Send("+MODE=LWOTAA"))
	assert.Equal(t, []string{"AT+MODE=LWOTAA\r\n"}, tr.written)
}

func TestSendWaitsSettleDelay(t *testing.T) {
	tr := &scriptedTransport{}
	d := New(tr, 30*time.Millisecond, logger.GetLogger("[test]", logger.LogLevelError))

	start := time.Now()
	require.NoError(t, d.Send(""))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSendWriteError(t *testing.T) {
	tr := &scriptedTransport{err: errors.New("port gone")}
	d := newDriver(tr)

	err := d.Send("+JOIN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AT+JOIN")
}

func TestExchange(t *testing.T) {
	tr := &scriptedTransport{received: []string{"+AT: OK\r\n"}}
	d := newDriver(tr)

	data, err := d.Exchange("")
	require.NoError(t, err)
	assert.Equal(t, "+AT: OK\r\n", data)
}

func TestPollStopsWhenDone(t *testing.T) {
	tr := &scriptedTransport{received: []string{"", "+MSG: Start\r\n", "+MSG: Done\r\n", "never read"}}
	d := newDriver(tr)

	var seen []string
	err := d.Poll(context.Background(), PollOptions{Interval: time.Millisecond}, func(data string) (bool, error) {
		seen = append(seen, data)
		return strings.Contains(data, "Done"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, len(seen))
	assert.Equal(t, []string{"never read"}, tr.received)
}

func TestPollPropagatesCheckError(t *testing.T) {
	tr := &scriptedTransport{received: []string{"+JOIN: Join failed\r\n"}}
	d := newDriver(tr)

	failed := errors.New("join failed")
	err := d.Poll(context.Background(), PollOptions{Interval: time.Millisecond}, func(data string) (bool, error) {
		return false, failed
	})

	assert.Equal(t, failed, err)
}

func TestPollMaxPolls(t *testing.T) {
	tr := &scriptedTransport{}
	d := newDriver(tr)

	calls := 0
	err := d.Poll(context.Background(), PollOptions{Interval: time.Millisecond, MaxPolls: 4}, func(string) (bool, error) {
		calls++
		return false, nil
	})

	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Equal(t, 4, calls)
}

func TestPollMaxPollsReturnsWithoutExtraInterval(t *testing.T) {
	tr := &scriptedTransport{}
	d := newDriver(tr)

	start := time.Now()
	err := d.Poll(context.Background(), PollOptions{Interval: 100 * time.Millisecond, MaxPolls: 2}, func(string) (bool, error) {
		return false, nil
	})

	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestPollSinglePoll(t *testing.T) {
	tr := &scriptedTransport{}
	d := newDriver(tr)

	start := time.Now()
	err := d.Poll(context.Background(), PollOptions{Interval: time.Hour, MaxPolls: 1}, func(string) (bool, error) {
		return false, nil
	})

	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollTimeout(t *testing.T) {
	tr := &scriptedTransport{}
	d := newDriver(tr)

	start := time.Now()
	err := d.Poll(context.Background(), PollOptions{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, func(string) (bool, error) {
		return false, nil
	})

	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollCancelled(t *testing.T) {
	tr := &scriptedTransport{}
	d := newDriver(tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Poll(ctx, PollOptions{Interval: time.Hour}, func(string) (bool, error) {
		return false, nil
	})

	assert.Equal(t, context.Canceled, err)
}
