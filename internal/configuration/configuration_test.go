package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	filename := filepath.Join(t.TempDir(), "configuration.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0600))

	return filename
}

func TestInitMissingFileUsesDefaults(t *testing.T) {
	svc, err := Init(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	assert.Equal(t, "EU868", cfg.RadioConfiguration.Band)
	assert.Equal(t, "0-2", cfg.RadioConfiguration.Channels)
	assert.Equal(t, "0", cfg.RadioConfiguration.DataRate)
	assert.Equal(t, uint32(9600), cfg.SerialConfiguration.BaudRate)
	assert.Equal(t, 300*time.Millisecond, cfg.RadioConfiguration.SettleDelay)
	assert.Equal(t, 3*time.Second, cfg.TelemetryConfiguration.Interval)
	assert.Equal(t, "", cfg.RadioConfiguration.AppKey)
}

func TestInitReadsFile(t *testing.T) {
	filename := writeConfig(t, `
serial:
  port_name: /dev/ttyACM0
radio:
  app_key: E08B834FB0866939FC94CDCC15D0A0BE
  band: us915
  join_timeout: 30s
telemetry:
  format: cayenne
  interval: 10s
log_level: debug
`)

	svc, err := Init(filename)
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	assert.Equal(t, "/dev/ttyACM0", cfg.SerialConfiguration.PortName)
	assert.Equal(t, "E08B834FB0866939FC94CDCC15D0A0BE", cfg.RadioConfiguration.AppKey)
	assert.Equal(t, "US915", cfg.RadioConfiguration.Band)
	assert.Equal(t, "8-15", cfg.RadioConfiguration.Channels)
	assert.Equal(t, 30*time.Second, cfg.RadioConfiguration.JoinTimeout)
	assert.Equal(t, "cayenne", cfg.TelemetryConfiguration.Format)
	assert.Equal(t, 10*time.Second, cfg.TelemetryConfiguration.Interval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInitInvalidYAML(t *testing.T) {
	filename := writeConfig(t, "radio: [unterminated")

	_, err := Init(filename)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := ApplyDefaults(Configuration{})
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.RadioConfiguration.Band = "MARS433"
	assert.Error(t, bad.Validate())

	bad = ApplyDefaults(Configuration{RadioConfiguration: RadioConfiguration{Band: "AS923"}})
	assert.Error(t, bad.Validate(), "AS923 has no channel preset")

	bad = cfg
	bad.TelemetryConfiguration.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SensorConfiguration.Kind = "iio"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RadioConfiguration.ADR = "maybe"
	assert.Error(t, bad.Validate())
}

func TestRegionChannels(t *testing.T) {
	assert.Equal(t, "0-2", RegionChannels("EU868"))
	assert.Equal(t, "8-15", RegionChannels("au915"))
	assert.Equal(t, "", RegionChannels("KR920"))
}

func TestUpdateAndSave(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "configuration.yaml")
	svc, err := Init(filename)
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	cfg.RadioConfiguration.AppKey = "E1A2D215693295D6567BC33DC805040B"
	require.NoError(t, svc.Update(cfg))
	require.NoError(t, svc.Save())

	reloaded, err := Init(filename)
	require.NoError(t, err)
	assert.Equal(t, "E1A2D215693295D6567BC33DC805040B", reloaded.GetConfiguration().RadioConfiguration.AppKey)
	assert.Equal(t, 300*time.Millisecond, reloaded.GetConfiguration().RadioConfiguration.SettleDelay)

	cfg.TelemetryConfiguration.Format = "xml"
	assert.Error(t, svc.Update(cfg))
}
