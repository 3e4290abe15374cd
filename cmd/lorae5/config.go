package main

import (
	"github.com/supby/lorae5/internal/configuration"
)

type overrides struct {
	PortName   string
	Save       bool
	Verbose    bool
	DryRun     bool
	MaxUplinks int
}

// loadConfiguration reads filename and applies the command line overrides.
// Only the port is persistent: with Save set it is written back to filename
// before the per-run overrides are applied.
func loadConfiguration(filename string, o overrides) (configuration.Configuration, error) {
	configService, err := configuration.Init(filename)
	if err != nil {
		return configuration.Configuration{}, err
	}

	cfg := configService.GetConfiguration()
	if o.PortName != "" {
		cfg.SerialConfiguration.PortName = o.PortName
		if err := configService.Update(cfg); err != nil {
			return configuration.Configuration{}, err
		}
	}

	if o.Save {
		if err := configService.Save(); err != nil {
			return configuration.Configuration{}, err
		}
	}

	cfg = configService.GetConfiguration()
	if o.Verbose {
		cfg.SerialConfiguration.Trace = true
	}
	if o.DryRun {
		cfg.SensorConfiguration.Kind = "fixed"
	}
	if o.MaxUplinks > 0 {
		cfg.TelemetryConfiguration.MaxUplinks = o.MaxUplinks
	}
	if err := configService.Update(cfg); err != nil {
		return configuration.Configuration{}, err
	}

	return configService.GetConfiguration(), nil
}
