package configuration

import "time"

type SerialConfiguration struct {
	PortName  string        `yaml:"port_name"`
	BaudRate  uint32        `yaml:"baud_rate"`
	PollDelay time.Duration `yaml:"poll_delay"`
	Trace     bool          `yaml:"trace"`
}

type RadioConfiguration struct {
	AppKey       string        `yaml:"app_key"`
	Band         string        `yaml:"band"`
	Channels     string        `yaml:"channels"`
	DataRate     string        `yaml:"data_rate"`
	ADR          string        `yaml:"adr"` // "", "on" or "off"; empty leaves the module default
	SettleDelay  time.Duration `yaml:"settle_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JoinTimeout  time.Duration `yaml:"join_timeout"`
	JoinMaxPolls int           `yaml:"join_max_polls"`
	JoinAttempts int           `yaml:"join_attempts"`
	JoinRetry    time.Duration `yaml:"join_retry"` // first pause between join attempts, doubled each time
	SendTimeout  time.Duration `yaml:"send_timeout"`
	SendMaxPolls int           `yaml:"send_max_polls"`
}

type SensorConfiguration struct {
	Kind                string  `yaml:"kind"` // fixed, iio or ads1115
	FixedValue          uint16  `yaml:"fixed_value"`
	IIOPath             string  `yaml:"iio_path"`
	IIOBits             uint8   `yaml:"iio_bits"`
	I2CBus              string  `yaml:"i2c_bus"`
	I2CAddress          uint16  `yaml:"i2c_address"`
	Channel             int     `yaml:"channel"`
	ReferenceVolts      float64 `yaml:"reference_volts"`
	MillivoltsPerDegree float64 `yaml:"millivolts_per_degree"`
}

type TelemetryConfiguration struct {
	Interval   time.Duration `yaml:"interval"`
	Format     string        `yaml:"format"` // text, fixed2 or cayenne
	MaxUplinks int           `yaml:"max_uplinks"`
}

type StoreConfiguration struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MqttConfiguration struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Port      uint16 `yaml:"port"`
	RootTopic string `yaml:"root_topic"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type Configuration struct {
	SerialConfiguration    SerialConfiguration    `yaml:"serial"`
	RadioConfiguration     RadioConfiguration     `yaml:"radio"`
	SensorConfiguration    SensorConfiguration    `yaml:"sensor"`
	TelemetryConfiguration TelemetryConfiguration `yaml:"telemetry"`
	StoreConfiguration     StoreConfiguration     `yaml:"store"`
	MqttConfiguration      MqttConfiguration      `yaml:"mqtt"`
	LogLevel               string                 `yaml:"log_level"` // error, warn, info or debug
}
