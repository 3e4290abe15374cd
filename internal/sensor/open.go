package sensor

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"github.com/supby/lorae5/internal/configuration"
)

var adsChannels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// Open builds the sampler named by cfg.Kind. The returned function releases
// whatever hardware the sampler holds.
func Open(cfg configuration.SensorConfiguration) (Sampler, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case "fixed":
		return Fixed{Value: cfg.FixedValue}, noop, nil
	case "iio":
		return IIO{Path: cfg.IIOPath, Bits: cfg.IIOBits}, noop, nil
	case "ads1115":
		return openADS1115(cfg)
	}

	return nil, nil, errors.Errorf("unknown sensor kind %q", cfg.Kind)
}

func openADS1115(cfg configuration.SensorConfiguration) (Sampler, func() error, error) {
	if cfg.Channel < 0 || cfg.Channel >= len(adsChannels) {
		return nil, nil, errors.Errorf("ads1115 channel %d out of range", cfg.Channel)
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "initialize periph host")
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open i2c bus %q", cfg.I2CBus)
	}

	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: cfg.I2CAddress})
	if err != nil {
		bus.Close()
		return nil, nil, errors.Wrap(err, "open ads1115")
	}

	maxVoltage := physic.ElectricPotential(cfg.ReferenceVolts * float64(physic.Volt))
	pin, err := adc.PinForChannel(adsChannels[cfg.Channel], maxVoltage, 1*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		bus.Close()
		return nil, nil, errors.Wrap(err, "configure ads1115 channel")
	}

	release := func() error {
		if err := pin.Halt(); err != nil {
			bus.Close()
			return err
		}
		return bus.Close()
	}

	return PinADC{Pin: pin, ReferenceVolts: cfg.ReferenceVolts}, release, nil
}
