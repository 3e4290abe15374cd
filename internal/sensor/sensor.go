package sensor

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"github.com/supby/lorae5/internal/types"
)

const FullScale = 65535

// Converter turns a 16-bit ADC sample into a temperature for a linear sensor
// such as the LM35 (10 mV per degree Celsius).
type Converter struct {
	ReferenceVolts      float64
	MillivoltsPerDegree float64
}

var DefaultConverter = Converter{
	ReferenceVolts:      3.3,
	MillivoltsPerDegree: 10,
}

func (c Converter) Convert(raw uint16) types.Reading {
	factor := c.ReferenceVolts / FullScale
	volts := float64(raw) * factor

	return types.Reading{
		Raw:     raw,
		Volts:   volts,
		Celsius: volts / (c.MillivoltsPerDegree / 1000),
		TakenAt: time.Now(),
	}
}

// Fixed always returns Value.
type Fixed struct {
	Value uint16
}

func (f Fixed) ReadU16() (uint16, error) {
	return f.Value, nil
}

// IIO reads a Linux industrial I/O channel such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw and scales it to 16 bits.
type IIO struct {
	Path string
	Bits uint8
}

func (s IIO) ReadU16() (uint16, error) {
	buf, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, errors.Wrap(err, "read iio channel")
	}

	raw, err := strconv.ParseUint(strings.TrimSpace(string(buf)), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parse iio value %q", strings.TrimSpace(string(buf)))
	}

	return scaleToU16(raw, s.Bits), nil
}

func scaleToU16(raw uint64, bits uint8) uint16 {
	if bits == 0 || bits > 16 {
		bits = 16
	}

	max := uint64(1)<<bits - 1
	if raw > max {
		raw = max
	}

	return uint16(math.Round(float64(raw) * FullScale / float64(max)))
}

// PinADC samples a periph analog pin and expresses the measured voltage as a
// fraction of ReferenceVolts on the 16-bit scale.
type PinADC struct {
	Pin            ADCReader
	ReferenceVolts float64
}

func (p PinADC) ReadU16() (uint16, error) {
	sample, err := p.Pin.Read()
	if err != nil {
		return 0, errors.Wrap(err, "read adc pin")
	}

	volts := float64(sample.V) / float64(physic.Volt)
	if volts <= 0 {
		return 0, nil
	}
	if volts >= p.ReferenceVolts {
		return FullScale, nil
	}

	return uint16(math.Round(volts / p.ReferenceVolts * FullScale)), nil
}
