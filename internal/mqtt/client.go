package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/supby/lorae5/internal/configuration"
	"github.com/supby/lorae5/internal/logger"
	"github.com/supby/lorae5/internal/types"
)

type MqttClient interface {
	Dispose()
	Publish(subTopic string, data []byte) error
}

// Publisher mirrors what the radio sends to a local broker, keyed by DevEUI.
type Publisher struct {
	client MqttClient
	logger logger.Logger
}

func NewClient(config *configuration.MqttConfiguration, log logger.Logger) (MqttClient, func(), error) {
	retClient := defaultMqttClient{
		configuration: config,
		logger:        log,
	}

	mqttlib.ERROR = stdLogger(log, "[MQTT Client] ")

	opts := mqttlib.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", config.Address, config.Port))
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.AutoReconnect = true
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(client mqttlib.Client) {
		retClient.logger.Info("Connected")
	}
	opts.OnConnectionLost = func(client mqttlib.Client, err error) {
		retClient.logger.Warn("Connect lost: %v", err)
	}

	innerClient := mqttlib.NewClient(opts)

	if token := innerClient.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, errors.Wrapf(token.Error(), "connect to mqtt broker %v:%v", config.Address, config.Port)
	}

	retClient.logger.Info("Connected to MQTT on '%v:%v'", config.Address, config.Port)

	retClient.innerClient = innerClient

	return &retClient, func() { retClient.Dispose() }, nil
}

type defaultMqttClient struct {
	innerClient   mqttlib.Client
	configuration *configuration.MqttConfiguration
	logger        logger.Logger
}

func (cl *defaultMqttClient) Dispose() {
	cl.logger.Info("Disposing MQTT client")
	cl.innerClient.Disconnect(250)
}

func (cl *defaultMqttClient) Publish(subTopic string, data []byte) error {
	token := cl.innerClient.Publish(fmt.Sprintf("%v/%v", cl.configuration.RootTopic, subTopic), 0, false, data)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return token.Error()
	}

	return nil
}

func NewPublisher(client MqttClient, log logger.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: log,
	}
}

func (p *Publisher) PublishStatus(identity types.Identity, status string) error {
	return p.publish(fmt.Sprintf("%v/status", identity.DevEUI), StatusMessage{
		DevEUI:  identity.DevEUI,
		JoinEUI: identity.JoinEUI,
		Status:  status,
		Time:    time.Now(),
	})
}

func (p *Publisher) PublishUplink(identity types.Identity, uplink types.Uplink) error {
	return p.publish(fmt.Sprintf("%v/uplink", identity.DevEUI), UplinkMessage{
		DevEUI:   identity.DevEUI,
		Sequence: uplink.Sequence,
		Raw:      uplink.Reading.Raw,
		Volts:    uplink.Reading.Volts,
		Celsius:  uplink.Reading.Celsius,
		Message:  uplink.Message,
		Response: uplink.Response,
		SentAt:   uplink.SentAt,
	})
}

func (p *Publisher) publish(subTopic string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal mqtt message")
	}

	p.logger.Debug("Publishing to %v: %s", subTopic, data)

	return errors.Wrapf(p.client.Publish(subTopic, data), "publish %v", subTopic)
}

func stdLogger(l logger.Logger, prefix string) *log.Logger {
	return log.New(l.GetWriter(), prefix, 0)
}
