package radio

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/supby/lorae5/internal/atcmd"
	"github.com/supby/lorae5/internal/configuration"
	"github.com/supby/lorae5/internal/logger"
	"github.com/supby/lorae5/internal/types"
)

// ReadyResponse is the module's exact answer to an empty AT command.
const ReadyResponse = "+AT: OK\r\n"

type JoinStatus int

const (
	NotConnected JoinStatus = iota
	Connected
)

func (s JoinStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "not connected"
}

type RegionSettings struct {
	Band     string
	DataRate string
	Channels string
}

type Settings struct {
	AppKey       string
	Region       RegionSettings
	ADR          string
	JoinPoll     atcmd.PollOptions
	JoinAttempts int
	JoinRetry    time.Duration
}

func SettingsFromConfiguration(cfg configuration.RadioConfiguration) Settings {
	return Settings{
		AppKey: cfg.AppKey,
		Region: RegionSettings{
			Band:     cfg.Band,
			DataRate: cfg.DataRate,
			Channels: cfg.Channels,
		},
		ADR: cfg.ADR,
		JoinPoll: atcmd.PollOptions{
			Interval: cfg.PollInterval,
			Timeout:  cfg.JoinTimeout,
			MaxPolls: cfg.JoinMaxPolls,
		},
		JoinAttempts: cfg.JoinAttempts,
		JoinRetry:    cfg.JoinRetry,
	}
}

type Radio struct {
	driver *atcmd.Driver
	logger logger.Logger
}

func New(driver *atcmd.Driver, log logger.Logger) *Radio {
	return &Radio{
		driver: driver,
		logger: log,
	}
}

func (r *Radio) CheckConnection() error {
	data, err := r.driver.Exchange("")
	if err != nil {
		return err
	}

	if data != ReadyResponse {
		return &Error{Stage: StageCheckConnection, Kind: KindUnexpectedResponse, Response: data}
	}

	r.logger.Info("LoRa radio is ready")

	return nil
}

func (r *Radio) ReadIdentifiers() (types.Identity, error) {
	devEUI, err := r.readID("DevEui")
	if err != nil {
		return types.Identity{}, err
	}

	joinEUI, err := r.readID("AppEui")
	if err != nil {
		return types.Identity{}, err
	}

	r.logger.Info("JoinEUI: %v DevEUI: %v", joinEUI, devEUI)

	return types.Identity{
		DevEUI:  devEUI,
		JoinEUI: joinEUI,
		ReadAt:  time.Now(),
	}, nil
}

// readID expects "+ID: <name>, <value>" and returns the third token.
func (r *Radio) readID(name string) (string, error) {
	data, err := r.driver.Exchange("+ID=" + name)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(data)
	if len(fields) < 3 {
		return "", &Error{Stage: StageReadIdentifiers, Kind: KindUnexpectedResponse, Response: data}
	}

	return fields[2], nil
}

// SetAppKey provisions the AppKey. A missing or malformed key is rejected
// before anything is written to the module.
func (r *Radio) SetAppKey(key string) error {
	if key == "" || key == configuration.AppKeyPlaceholder {
		return &Error{
			Stage: StageSetCredential,
			Kind:  KindMissingCredential,
			Err:   errors.New("generate an AppKey on cloud.thethings.network and set radio.app_key"),
		}
	}

	if b, err := hex.DecodeString(key); err != nil || len(b) != 16 {
		return &Error{
			Stage: StageSetCredential,
			Kind:  KindInvalidCredential,
			Err:   errors.New("AppKey must be 32 hexadecimal digits"),
		}
	}

	if _, err := r.driver.Exchange(fmt.Sprintf(`+KEY=APPKEY,"%v"`, key)); err != nil {
		return err
	}

	r.logger.Info("AppKey: %v", key)

	return nil
}

// ConfigureRegion selects the band, data rate and channels and switches the
// module to OTAA. The module's data rate report is returned unchecked.
func (r *Radio) ConfigureRegion(s RegionSettings) (string, error) {
	for _, cmd := range []string{
		"+DR=" + s.Band,
		"+DR=" + s.DataRate,
		"+CH=NUM," + s.Channels,
		"+MODE=LWOTAA",
	} {
		if err := r.driver.Send(cmd); err != nil {
			return "", err
		}
	}

	// flush
	if _, err := r.driver.Receive(); err != nil {
		return "", err
	}

	data, err := r.driver.Exchange("+DR")
	if err != nil {
		return "", err
	}

	r.logger.Info("Data rate: %v", strings.TrimSpace(data))

	return data, nil
}

func (r *Radio) SetADR(on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}

	data, err := r.driver.Exchange("+ADR=" + state)
	if err != nil {
		return err
	}

	r.logger.Debug("ADR: %v", strings.TrimSpace(data))

	return nil
}

func (r *Radio) Join(ctx context.Context, opts atcmd.PollOptions) (JoinStatus, error) {
	data, err := r.driver.Exchange("+JOIN")
	if err != nil {
		return NotConnected, err
	}

	// a status word can arrive split across two polls
	status := NotConnected
	var seen strings.Builder
	check := func(data string) (bool, error) {
		if data == "" {
			return false, nil
		}

		r.logger.Info("%v", strings.TrimSpace(data))
		seen.WriteString(data)

		tokens := strings.Fields(seen.String())
		if containsToken(tokens, "joined") {
			status = Connected
			return true, nil
		}
		if containsToken(tokens, "failed") {
			return false, &Error{Stage: StageJoin, Kind: KindJoinFailed, Response: seen.String()}
		}

		return false, nil
	}

	if done, err := check(data); done || err != nil {
		return status, err
	}

	err = r.driver.Poll(ctx, opts, check)
	if errors.Is(err, atcmd.ErrPollTimeout) {
		return status, &Error{Stage: StageJoin, Kind: KindTimeout, Err: err}
	}

	return status, err
}

// SendMessage sends msg as a text uplink and waits for the module to finish
// the transmission. The collected module output is returned.
func (r *Radio) SendMessage(ctx context.Context, msg string, opts atcmd.PollOptions) (string, error) {
	return r.send(ctx, fmt.Sprintf(`+MSG="%v"`, msg), opts)
}

// SendHex sends a binary uplink given as hex digits.
func (r *Radio) SendHex(ctx context.Context, payload string, opts atcmd.PollOptions) (string, error) {
	return r.send(ctx, fmt.Sprintf(`+MSGHEX="%v"`, payload), opts)
}

func (r *Radio) send(ctx context.Context, cmd string, opts atcmd.PollOptions) (string, error) {
	if err := r.driver.Send(cmd); err != nil {
		return "", err
	}

	var response strings.Builder
	err := r.driver.Poll(ctx, opts, func(data string) (bool, error) {
		if data == "" {
			return false, nil
		}

		r.logger.Debug("%v", strings.TrimSpace(data))
		response.WriteString(data)

		collected := response.String()
		if strings.Contains(collected, "ERROR") {
			return false, &Error{Stage: StageSend, Kind: KindSendFailed, Response: collected}
		}

		return strings.Contains(collected, "Done"), nil
	})
	if errors.Is(err, atcmd.ErrPollTimeout) {
		return response.String(), &Error{Stage: StageSend, Kind: KindTimeout, Response: response.String(), Err: err}
	}

	return response.String(), err
}

// Provision runs the start-up sequence: connection check, identifiers,
// AppKey, regional settings and the network join.
func (r *Radio) Provision(ctx context.Context, s Settings) (types.Identity, error) {
	if err := r.CheckConnection(); err != nil {
		return types.Identity{}, err
	}

	identity, err := r.ReadIdentifiers()
	if err != nil {
		return types.Identity{}, err
	}

	if err := r.SetAppKey(s.AppKey); err != nil {
		return identity, err
	}

	if _, err := r.ConfigureRegion(s.Region); err != nil {
		return identity, err
	}

	if s.ADR != "" {
		if err := r.SetADR(strings.EqualFold(s.ADR, "on")); err != nil {
			return identity, err
		}
	}

	if err := r.joinWithRetry(ctx, s); err != nil {
		return identity, err
	}

	return identity, nil
}

func (r *Radio) joinWithRetry(ctx context.Context, s Settings) error {
	attempts := s.JoinAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := &backoff.Backoff{
		Min:    s.JoinRetry,
		Max:    10 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		_, err := r.Join(ctx, s.JoinPoll)
		if err == nil {
			r.logger.Info("Joined network")
			return nil
		}

		retryable := IsKind(err, KindJoinFailed) || IsKind(err, KindTimeout)
		if !retryable || attempt >= attempts {
			return err
		}

		wait := b.Duration()
		r.logger.Warn("Join attempt %d of %d failed: %v; retrying in %v", attempt, attempts, err, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}

	return false
}
