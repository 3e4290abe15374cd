package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/supby/lorae5/internal/atcmd"
	"github.com/supby/lorae5/internal/configuration"
	"github.com/supby/lorae5/internal/db"
	"github.com/supby/lorae5/internal/emulator"
	"github.com/supby/lorae5/internal/logger"
	"github.com/supby/lorae5/internal/mqtt"
	"github.com/supby/lorae5/internal/radio"
	"github.com/supby/lorae5/internal/sensor"
	"github.com/supby/lorae5/internal/telemetry"
	"github.com/supby/lorae5/internal/transport"
	"github.com/supby/lorae5/internal/types"
)

var (
	app        = kingpin.New("lorae5", "Provision a LoRa-E5 module, join The Things Network and send temperature readings.")
	configFile = app.Flag("config", "path to config file name").Short('c').Default("./configuration.yaml").String()
	portName   = app.Flag("port", "serial port, overrides the config file").String()
	verbose    = app.Flag("verbose", "debug logging and serial trace").Short('v').Bool()
	dryRun     = app.Flag("dry-run", "talk to an emulated module instead of the serial port").Bool()
	saveConfig = app.Flag("save", "write --port back to the config file").Bool()

	runCmd   = app.Command("run", "provision the module, join and send readings").Default()
	runCount = runCmd.Flag("count", "stop after this many uplinks (0 runs until interrupted)").Int()

	idsCmd = app.Command("ids", "check the module and print its DevEUI and JoinEUI")

	historyCmd   = app.Command("history", "print identity and uplinks recorded in the store")
	historyLimit = historyCmd.Flag("limit", "number of most recent uplinks").Default("20").Int()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		waitForInterruptSignal()
		cancel()
	}()

	log := logger.GetLogger("[main]", logger.LogLevelInfo)

	err := execute(ctx, command, log)
	if err != nil && ctx.Err() == nil {
		log.Error("%v", err)
		cancel()
		os.Exit(exitCode(err))
	}

	log.Info("exiting app...")
}

func execute(ctx context.Context, command string, mainLogger logger.Logger) error {
	o := overrides{
		PortName: *portName,
		Save:     *saveConfig,
		Verbose:  *verbose,
		DryRun:   *dryRun,
	}
	if command == runCmd.FullCommand() {
		o.MaxUplinks = *runCount
	}

	cfg, err := loadConfiguration(*configFile, o)
	if err != nil {
		return err
	}
	if o.Save {
		mainLogger.Info("Saved configuration to %v", *configFile)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if *verbose {
		level = logger.LogLevelDebug
	}
	log := logger.GetLogger("[main]", level)

	switch command {
	case runCmd.FullCommand():
		return run(ctx, cfg, log)
	case idsCmd.FullCommand():
		return ids(ctx, cfg, log)
	case historyCmd.FullCommand():
		return history(ctx, cfg, *historyLimit)
	}

	mainLogger.Warn("unknown command %v", command)

	return nil
}

func run(ctx context.Context, cfg configuration.Configuration, log logger.Logger) error {
	sampler, releaseSensor, err := sensor.Open(cfg.SensorConfiguration)
	if err != nil {
		return err
	}
	defer releaseSensor()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	r, closeRadio, err := openRadio(cfg, log)
	if err != nil {
		return err
	}
	defer closeRadio.Close()

	identity, err := r.Provision(ctx, radio.SettingsFromConfiguration(cfg.RadioConfiguration))
	if err != nil {
		return err
	}
	saveIdentity(ctx, store, identity, log)

	loop := telemetry.New(
		r,
		sampler,
		sensor.Converter{
			ReferenceVolts:      cfg.SensorConfiguration.ReferenceVolts,
			MillivoltsPerDegree: cfg.SensorConfiguration.MillivoltsPerDegree,
		},
		identity,
		telemetry.OptionsFromConfiguration(cfg),
		log.WithPrefix("[telemetry]"),
	)
	if store != nil {
		loop.WithRecorder(store)
	}

	if cfg.MqttConfiguration.Enabled {
		mqttLog := log.WithPrefix("[MQTT Client]")
		client, mqttDisconnect, err := mqtt.NewClient(&cfg.MqttConfiguration, mqttLog)
		if err != nil {
			return err
		}
		defer mqttDisconnect()

		publisher := mqtt.NewPublisher(client, mqttLog)
		if err := publisher.PublishStatus(identity, "joined"); err != nil {
			log.Warn("Failed to publish status: %v", err)
		}
		loop.WithPublisher(publisher)
	}

	return loop.Run(ctx)
}

func ids(ctx context.Context, cfg configuration.Configuration, log logger.Logger) error {
	r, closeRadio, err := openRadio(cfg, log)
	if err != nil {
		return err
	}
	defer closeRadio.Close()

	if err := r.CheckConnection(); err != nil {
		return err
	}

	identity, err := r.ReadIdentifiers()
	if err != nil {
		return err
	}

	fmt.Printf("JoinEUI: %v\nDevEUI:  %v\n", identity.JoinEUI, identity.DevEUI)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	saveIdentity(ctx, store, identity, log)

	return nil
}

func history(ctx context.Context, cfg configuration.Configuration, limit int) error {
	store, err := db.NewTelemetryDB(cfg.StoreConfiguration.Path, db.TelemetryDBOptions{})
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	identity, err := store.GetIdentity(ctx)
	switch err {
	case nil:
		fmt.Printf("JoinEUI: %v\nDevEUI:  %v\n(read %v)\n\n", identity.JoinEUI, identity.DevEUI, identity.ReadAt.Format(time.RFC3339))
	case db.ErrNotFound:
		fmt.Println("No identity recorded")
	default:
		return err
	}

	uplinks, err := store.GetUplinks(ctx, limit)
	if err != nil {
		return err
	}

	for _, u := range uplinks {
		fmt.Printf("%6d  %v  raw=%-5d  %8.2f °C  %q  %v\n",
			u.Sequence,
			u.SentAt.Format(time.RFC3339),
			u.Reading.Raw,
			u.Reading.Celsius,
			u.Message,
			strings.Join(strings.Fields(u.Response), " "))
	}

	return nil
}

func openRadio(cfg configuration.Configuration, log logger.Logger) (*radio.Radio, io.Closer, error) {
	serialLog := log.WithPrefix("[serial]")

	var tr *transport.Transport
	if *dryRun {
		log.Info("Dry run: using an emulated LoRa-E5")
		dev := emulator.New(emulator.Options{
			JoinDelay: 3 * time.Second,
			AirTime:   1500 * time.Millisecond,
		})
		tr = transport.New(dev, transport.Options{
			PollDelay: cfg.SerialConfiguration.PollDelay,
			Trace:     cfg.SerialConfiguration.Trace,
			Logger:    serialLog,
		})
	} else {
		var err error
		tr, err = transport.Open(cfg.SerialConfiguration, serialLog)
		if err != nil {
			return nil, nil, err
		}
	}

	driver := atcmd.New(tr, cfg.RadioConfiguration.SettleDelay, log.WithPrefix("[at]"))

	return radio.New(driver, log.WithPrefix("[radio]")), tr, nil
}

// openStore returns a nil store when the store is disabled.
func openStore(cfg configuration.Configuration) (db.TelemetryDB, func(), error) {
	if !cfg.StoreConfiguration.Enabled {
		return nil, func() {}, nil
	}

	store, err := db.NewTelemetryDB(cfg.StoreConfiguration.Path, db.TelemetryDBOptions{})
	if err != nil {
		return nil, nil, err
	}

	return store, func() { store.Close(context.Background()) }, nil
}

func saveIdentity(ctx context.Context, store db.TelemetryDB, identity types.Identity, log logger.Logger) {
	if store == nil {
		return
	}

	if err := store.SaveIdentity(ctx, identity); err != nil {
		log.Warn("Failed to store identity: %v", err)
	}
}

func waitForInterruptSignal() {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt)
	defer func() {
		signal.Stop(sigchan)
	}()
	<-sigchan
}
