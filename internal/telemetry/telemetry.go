package telemetry

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/supby/lorae5/internal/atcmd"
	"github.com/supby/lorae5/internal/configuration"
	"github.com/supby/lorae5/internal/logger"
	"github.com/supby/lorae5/internal/payload"
	"github.com/supby/lorae5/internal/sensor"
	"github.com/supby/lorae5/internal/types"
)

type Options struct {
	Format   string
	Interval time.Duration
	// MaxUplinks stops the loop after that many uplinks; 0 runs until the
	// context is cancelled.
	MaxUplinks int
	SendPoll   atcmd.PollOptions
}

func OptionsFromConfiguration(cfg configuration.Configuration) Options {
	return Options{
		Format:     cfg.TelemetryConfiguration.Format,
		Interval:   cfg.TelemetryConfiguration.Interval,
		MaxUplinks: cfg.TelemetryConfiguration.MaxUplinks,
		SendPoll: atcmd.PollOptions{
			Interval: cfg.RadioConfiguration.PollInterval,
			Timeout:  cfg.RadioConfiguration.SendTimeout,
			MaxPolls: cfg.RadioConfiguration.SendMaxPolls,
		},
	}
}

type Loop struct {
	sender    Sender
	sampler   sensor.Sampler
	converter sensor.Converter
	identity  types.Identity
	opts      Options
	logger    logger.Logger

	recorder  Recorder
	publisher Publisher
}

func New(sender Sender, sampler sensor.Sampler, converter sensor.Converter, identity types.Identity, opts Options, log logger.Logger) *Loop {
	return &Loop{
		sender:    sender,
		sampler:   sampler,
		converter: converter,
		identity:  identity,
		opts:      opts,
		logger:    log,
	}
}

// WithRecorder stores every completed uplink.
func (l *Loop) WithRecorder(r Recorder) *Loop {
	l.recorder = r
	return l
}

// WithPublisher mirrors every completed uplink.
func (l *Loop) WithPublisher(p Publisher) *Loop {
	l.publisher = p
	return l
}

// Run samples and sends until ctx is cancelled or MaxUplinks is reached.
// Cancellation is a clean stop; any sampling or send failure is returned.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Sending temperature data every %v", l.opts.Interval)

	for sent := 0; l.opts.MaxUplinks == 0 || sent < l.opts.MaxUplinks; sent++ {
		if _, err := l.Step(ctx, uint64(sent+1)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if l.opts.MaxUplinks != 0 && sent+1 == l.opts.MaxUplinks {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.opts.Interval):
		}
	}

	return nil
}

// Step takes one sample and sends it. seq numbers the uplink when no
// recorder assigns one.
func (l *Loop) Step(ctx context.Context, seq uint64) (types.Uplink, error) {
	raw, err := l.sampler.ReadU16()
	if err != nil {
		return types.Uplink{}, errors.Wrap(err, "sample sensor")
	}

	reading := l.converter.Convert(raw)
	l.logger.Info("Temperature: %v °C", payload.FormatCelsius(reading.Celsius))

	msg, err := payload.Encode(l.opts.Format, reading)
	if err != nil {
		return types.Uplink{}, err
	}

	var response string
	if msg.Hex {
		response, err = l.sender.SendHex(ctx, msg.Body, l.opts.SendPoll)
	} else {
		response, err = l.sender.SendMessage(ctx, msg.Body, l.opts.SendPoll)
	}
	if err != nil {
		return types.Uplink{}, err
	}

	uplink := types.Uplink{
		Sequence: seq,
		Reading:  reading,
		Message:  msg.Body,
		Response: response,
		SentAt:   time.Now(),
	}

	if l.recorder != nil {
		stored, err := l.recorder.AppendUplink(ctx, uplink)
		if err != nil {
			l.logger.Warn("Failed to store uplink %d: %v", uplink.Sequence, err)
		} else {
			uplink = stored
		}
	}

	if l.publisher != nil {
		if err := l.publisher.PublishUplink(l.identity, uplink); err != nil {
			l.logger.Warn("Failed to publish uplink %d: %v", uplink.Sequence, err)
		}
	}

	return uplink, nil
}
