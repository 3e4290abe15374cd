package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supby/lorae5/internal/atcmd"
	"github.com/supby/lorae5/internal/emulator"
	"github.com/supby/lorae5/internal/logger"
	"github.com/supby/lorae5/internal/radio"
	"github.com/supby/lorae5/internal/sensor"
	"github.com/supby/lorae5/internal/transport"
	"github.com/supby/lorae5/internal/types"
)

type fakeSender struct {
	texts []string
	hexes []string
	err   error
}

func (s *fakeSender) SendMessage(ctx context.Context, msg string, opts atcmd.PollOptions) (string, error) {
	s.texts = append(s.texts, msg)
	return "+MSG: Done\r\n", s.err
}

func (s *fakeSender) SendHex(ctx context.Context, payload string, opts atcmd.PollOptions) (string, error) {
	s.hexes = append(s.hexes, payload)
	return "+MSGHEX: Done\r\n", s.err
}

type fakeRecorder struct {
	uplinks []types.Uplink
}

func (r *fakeRecorder) AppendUplink(ctx context.Context, u types.Uplink) (types.Uplink, error) {
	u.Sequence = uint64(100 + len(r.uplinks))
	r.uplinks = append(r.uplinks, u)
	return u, nil
}

type fakePublisher struct {
	uplinks []types.Uplink
}

func (p *fakePublisher) PublishUplink(identity types.Identity, u types.Uplink) error {
	p.uplinks = append(p.uplinks, u)
	return errors.New("broker down")
}

type failingSampler struct{}

func (failingSampler) ReadU16() (uint16, error) { return 0, errors.New("adc busy") }

var testLogger = logger.GetLogger("[telemetry]", logger.LogLevelError)

func TestStepSendsZeroReadingAsText(t *testing.T) {
	sender := &fakeSender{}
	l := New(sender, sensor.Fixed{Value: 0}, sensor.DefaultConverter, types.Identity{}, Options{Format: "text"}, testLogger)

	u, err := l.Step(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.0"}, sender.texts)
	assert.Equal(t, "0.0", u.Message)
	assert.Equal(t, uint64(1), u.Sequence)
	assert.Equal(t, "+MSG: Done\r\n", u.Response)
}

func TestStepCayenneUsesHex(t *testing.T) {
	sender := &fakeSender{}
	l := New(sender, sensor.Fixed{Value: 0}, sensor.DefaultConverter, types.Identity{}, Options{Format: "cayenne"}, testLogger)

	_, err := l.Step(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, sender.texts)
	assert.Equal(t, []string{"01670000"}, sender.hexes)
}

func TestStepRecordsAndPublishes(t *testing.T) {
	sender := &fakeSender{}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	l := New(sender, sensor.Fixed{Value: 0}, sensor.DefaultConverter, types.Identity{DevEUI: "X"}, Options{Format: "text"}, testLogger).
		WithRecorder(rec).
		WithPublisher(pub)

	u, err := l.Step(context.Background(), 1)
	require.NoError(t, err, "publish failures are not fatal")
	assert.Equal(t, uint64(100), u.Sequence)
	assert.Equal(t, 1, len(rec.uplinks))
	assert.Equal(t, uint64(100), pub.uplinks[0].Sequence)
}

func TestStepErrors(t *testing.T) {
	l := New(&fakeSender{}, failingSampler{}, sensor.DefaultConverter, types.Identity{}, Options{Format: "text"}, testLogger)
	_, err := l.Step(context.Background(), 1)
	assert.Error(t, err)

	sendErr := &radio.Error{Stage: radio.StageSend, Kind: radio.KindSendFailed}
	l = New(&fakeSender{err: sendErr}, sensor.Fixed{}, sensor.DefaultConverter, types.Identity{}, Options{Format: "text"}, testLogger)
	_, err = l.Step(context.Background(), 1)
	assert.True(t, radio.IsKind(err, radio.KindSendFailed))

	l = New(&fakeSender{}, sensor.Fixed{}, sensor.DefaultConverter, types.Identity{}, Options{Format: "morse"}, testLogger)
	_, err = l.Step(context.Background(), 1)
	assert.Error(t, err)
}

func TestRunStopsAfterMaxUplinks(t *testing.T) {
	sender := &fakeSender{}
	l := New(sender, sensor.Fixed{Value: 0}, sensor.DefaultConverter, types.Identity{}, Options{
		Format:     "text",
		Interval:   time.Millisecond,
		MaxUplinks: 3,
	}, testLogger)

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 3, len(sender.texts))
}

func TestRunStopsOnCancel(t *testing.T) {
	sender := &fakeSender{}
	l := New(sender, sensor.Fixed{Value: 0}, sensor.DefaultConverter, types.Identity{}, Options{
		Format:   "text",
		Interval: time.Hour,
	}, testLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Run(ctx))
	assert.Equal(t, 1, len(sender.texts))
}

func TestRunReturnsSendFailure(t *testing.T) {
	sendErr := &radio.Error{Stage: radio.StageSend, Kind: radio.KindTimeout}
	l := New(&fakeSender{err: sendErr}, sensor.Fixed{}, sensor.DefaultConverter, types.Identity{}, Options{
		Format:   "text",
		Interval: time.Millisecond,
	}, testLogger)

	err := l.Run(context.Background())
	assert.True(t, radio.IsKind(err, radio.KindTimeout))
}

func TestRunAgainstEmulatedRadio(t *testing.T) {
	dev := emulator.New(emulator.Options{AirTime: 10 * time.Millisecond})
	tr := transport.New(dev, transport.Options{PollDelay: time.Millisecond})
	defer tr.Close()
	r := radio.New(atcmd.New(tr, 20*time.Millisecond, testLogger), testLogger)

	l := New(r, sensor.Fixed{Value: 0}, sensor.DefaultConverter, types.Identity{}, Options{
		Format:     "text",
		Interval:   time.Millisecond,
		MaxUplinks: 2,
		SendPoll:   atcmd.PollOptions{Interval: 5 * time.Millisecond, Timeout: time.Second},
	}, testLogger)

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []string{`AT+MSG="0.0"`, `AT+MSG="0.0"`}, dev.Commands())
}
