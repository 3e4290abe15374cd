package configuration

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// AppKeyPlaceholder is the value shipped in the sample configuration. A
// radio is never provisioned with it.
const AppKeyPlaceholder = "None"

// regionChannels holds the channel ranges used with The Things Network for
// the bands the sample configuration documents.
var regionChannels = map[string]string{
	"EU868": "0-2",
	"US915": "8-15",
	"AU915": "8-15",
}

// bands accepted by the LoRa-E5 "AT+DR=<band>" command.
var bands = map[string]bool{
	"EU868":        true,
	"US915":        true,
	"US915HYBRID":  true,
	"US915OLD":     true,
	"AU915":        true,
	"AU915HYBRID":  true,
	"AS923":        true,
	"KR920":        true,
	"IN865":        true,
	"CN470":        true,
	"CN470PREQUEL": true,
	"CN779":        true,
	"EU433":        true,
	"STE920":       true,
}

type configurationService struct {
	filename string
	mu       sync.RWMutex
	config   Configuration
}

func Init(filename string) (ConfigurationService, error) {
	cfg := Default()

	_, err := os.Stat(filename)
	if err == nil {
		buf, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "read configuration %v", filename)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse configuration %v", filename)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat configuration %v", filename)
	}

	cfg = ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &configurationService{
		filename: filename,
		config:   cfg,
	}, nil
}

func (s *configurationService) GetConfiguration() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.config
}

func (s *configurationService) Update(updatedConfig Configuration) error {
	updatedConfig = ApplyDefaults(updatedConfig)
	if err := updatedConfig.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.config = updatedConfig
	s.mu.Unlock()

	return nil
}

func (s *configurationService) Save() error {
	s.mu.RLock()
	buf, err := yaml.Marshal(s.config)
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "marshal configuration")
	}

	return errors.Wrapf(os.WriteFile(s.filename, buf, 0600), "write configuration %v", s.filename)
}

// Default returns the settings the radio is provisioned with when no file
// overrides them.
func Default() Configuration {
	return Configuration{
		SerialConfiguration: SerialConfiguration{
			PortName:  "/dev/ttyUSB0",
			BaudRate:  9600,
			PollDelay: 2 * time.Millisecond,
		},
		RadioConfiguration: RadioConfiguration{
			Band:         "EU868",
			DataRate:     "0",
			SettleDelay:  300 * time.Millisecond,
			PollInterval: time.Second,
			JoinTimeout:  2 * time.Minute,
			JoinMaxPolls: 120,
			JoinAttempts: 1,
			JoinRetry:    10 * time.Second,
			SendTimeout:  time.Minute,
			SendMaxPolls: 60,
		},
		SensorConfiguration: SensorConfiguration{
			Kind:                "fixed",
			IIOBits:             12,
			I2CAddress:          0x48,
			ReferenceVolts:      3.3,
			MillivoltsPerDegree: 10,
		},
		TelemetryConfiguration: TelemetryConfiguration{
			Interval: 3 * time.Second,
			Format:   "text",
		},
		StoreConfiguration: StoreConfiguration{
			Path: "./data",
		},
		MqttConfiguration: MqttConfiguration{
			Address:   "localhost",
			Port:      1883,
			RootTopic: "lorae5",
			ClientID:  "lorae5",
		},
		LogLevel: "info",
	}
}

// ApplyDefaults fills every zero field of cfg from Default and resolves the
// channel range of known bands.
func ApplyDefaults(cfg Configuration) Configuration {
	def := Default()

	s := &cfg.SerialConfiguration
	if s.PortName == "" {
		s.PortName = def.SerialConfiguration.PortName
	}
	if s.BaudRate == 0 {
		s.BaudRate = def.SerialConfiguration.BaudRate
	}
	if s.PollDelay == 0 {
		s.PollDelay = def.SerialConfiguration.PollDelay
	}

	r := &cfg.RadioConfiguration
	r.Band = strings.ToUpper(strings.TrimSpace(r.Band))
	if r.Band == "" {
		r.Band = def.RadioConfiguration.Band
	}
	if r.Channels == "" {
		r.Channels = RegionChannels(r.Band)
	}
	if r.DataRate == "" {
		r.DataRate = def.RadioConfiguration.DataRate
	}
	if r.SettleDelay == 0 {
		r.SettleDelay = def.RadioConfiguration.SettleDelay
	}
	if r.PollInterval == 0 {
		r.PollInterval = def.RadioConfiguration.PollInterval
	}
	if r.JoinTimeout == 0 {
		r.JoinTimeout = def.RadioConfiguration.JoinTimeout
	}
	if r.JoinMaxPolls == 0 {
		r.JoinMaxPolls = def.RadioConfiguration.JoinMaxPolls
	}
	if r.JoinAttempts == 0 {
		r.JoinAttempts = def.RadioConfiguration.JoinAttempts
	}
	if r.JoinRetry == 0 {
		r.JoinRetry = def.RadioConfiguration.JoinRetry
	}
	if r.SendTimeout == 0 {
		r.SendTimeout = def.RadioConfiguration.SendTimeout
	}
	if r.SendMaxPolls == 0 {
		r.SendMaxPolls = def.RadioConfiguration.SendMaxPolls
	}

	sn := &cfg.SensorConfiguration
	if sn.Kind == "" {
		sn.Kind = def.SensorConfiguration.Kind
	}
	if sn.IIOBits == 0 {
		sn.IIOBits = def.SensorConfiguration.IIOBits
	}
	if sn.I2CAddress == 0 {
		sn.I2CAddress = def.SensorConfiguration.I2CAddress
	}
	if sn.ReferenceVolts == 0 {
		sn.ReferenceVolts = def.SensorConfiguration.ReferenceVolts
	}
	if sn.MillivoltsPerDegree == 0 {
		sn.MillivoltsPerDegree = def.SensorConfiguration.MillivoltsPerDegree
	}

	t := &cfg.TelemetryConfiguration
	if t.Interval == 0 {
		t.Interval = def.TelemetryConfiguration.Interval
	}
	if t.Format == "" {
		t.Format = def.TelemetryConfiguration.Format
	}

	if cfg.StoreConfiguration.Path == "" {
		cfg.StoreConfiguration.Path = def.StoreConfiguration.Path
	}

	m := &cfg.MqttConfiguration
	if m.Address == "" {
		m.Address = def.MqttConfiguration.Address
	}
	if m.Port == 0 {
		m.Port = def.MqttConfiguration.Port
	}
	if m.RootTopic == "" {
		m.RootTopic = def.MqttConfiguration.RootTopic
	}
	if m.ClientID == "" {
		m.ClientID = def.MqttConfiguration.ClientID
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	return cfg
}

// RegionChannels returns the channel range used for band, or "" when the band
// has no preset and the channels must be configured explicitly.
func RegionChannels(band string) string {
	return regionChannels[strings.ToUpper(band)]
}

// Validate checks settings that would otherwise only fail once the radio is
// half configured. The AppKey is checked by the provisioning sequence itself.
func (cfg Configuration) Validate() error {
	r := cfg.RadioConfiguration
	if !bands[r.Band] {
		return errors.Errorf("unsupported band %q", r.Band)
	}
	if r.Channels == "" {
		return errors.Errorf("no channel range configured for band %v", r.Band)
	}
	if r.JoinAttempts < 1 {
		return errors.Errorf("join_attempts must be at least 1, got %d", r.JoinAttempts)
	}
	switch strings.ToLower(r.ADR) {
	case "", "on", "off":
	default:
		return errors.Errorf("adr must be on or off, got %q", r.ADR)
	}

	switch cfg.SensorConfiguration.Kind {
	case "fixed", "iio", "ads1115":
	default:
		return errors.Errorf("unknown sensor kind %q", cfg.SensorConfiguration.Kind)
	}
	if cfg.SensorConfiguration.Kind == "iio" && cfg.SensorConfiguration.IIOPath == "" {
		return errors.New("sensor kind iio requires iio_path")
	}
	if b := cfg.SensorConfiguration.IIOBits; b > 16 {
		return errors.Errorf("iio_bits must be at most 16, got %d", b)
	}

	switch cfg.TelemetryConfiguration.Format {
	case "text", "fixed2", "cayenne":
	default:
		return errors.Errorf("unknown payload format %q", cfg.TelemetryConfiguration.Format)
	}
	if cfg.TelemetryConfiguration.MaxUplinks < 0 {
		return errors.New("max_uplinks must not be negative")
	}

	return nil
}
