package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

const (
	mqttKeepAlive     = 30 * time.Second
	mqttConnectRetry  = 2 * time.Second
	mqttReconnectMax  = 30 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// MQTTConfig configures the MQTT client.
type MQTTConfig struct {
	BrokerURL    string
	Base         string
	QoS          byte
	RobotID      string
	Capabilities []string
}

// MQTT is a broker link. Commands arrive on <base>/carebot/rx and
// events go out on <base>/carebot/tx.
type MQTT struct {
	cfg     MQTTConfig
	handler Handler
	client  mqtt.Client
	rx, tx  string
	log     *slog.Logger
}

var _ Client = (*MQTT)(nil)

// NewMQTT creates an MQTT client. handler may be nil when inbound
// frames are not of interest.
func NewMQTT(cfg MQTTConfig, handler Handler) *MQTT {
	if handler == nil {
		handler = func([]byte) {}
	}
	m := &MQTT{
		cfg:     cfg,
		handler: handler,
		rx:      cfg.Base + "/carebot/rx",
		tx:      cfg.Base + "/carebot/tx",
		log:     log.Component("transport"),
	}

	// A shared client id would kick the other instance off the broker,
	// so every process gets its own.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(fmt.Sprintf("carebot-app-%s-%d", cfg.RobotID, os.Getpid())).
		SetCleanSession(true).
		SetKeepAlive(mqttKeepAlive).
		SetConnectRetry(true).
		SetConnectRetryInterval(mqttConnectRetry).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(mqttReconnectMax).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(m.onConnectionLost)
	m.client = mqtt.NewClient(opts)
	return m
}

// Publish stamps, marshals, and hands one event to the broker client.
// Delivery failures log at debug; the caller is never blocked.
func (m *MQTT) Publish(v any) {
	data, err := encode(v, m.cfg.RobotID)
	if err != nil {
		m.log.Error("event marshal failed", "err", err)
		return
	}
	tok := m.client.Publish(m.tx, m.cfg.QoS, false, data)
	go func() {
		if tok.Wait() && tok.Error() != nil {
			m.log.Debug("publish failed", "topic", m.tx, "err", tok.Error())
		}
	}()
}

// Run connects and serves until ctx is cancelled. The client retries
// the initial connect itself, so a broker that is not up yet does not
// fail the agent.
func (m *MQTT) Run(ctx context.Context) {
	m.log.Info("connecting", "broker", m.cfg.BrokerURL, "rx", m.rx, "tx", m.tx)
	tok := m.client.Connect()
	go func() {
		if tok.Wait() && tok.Error() != nil {
			m.log.Error("mqtt connect failed", "err", tok.Error())
		}
	}()
	<-ctx.Done()
	m.client.Disconnect(disconnectQuiesce)
}

// onConnect runs on every (re)connect. Clean sessions drop broker
// state, so the subscription and the hello are refreshed each time.
func (m *MQTT) onConnect(c mqtt.Client) {
	m.log.Info("mqtt connected", "broker", m.cfg.BrokerURL)
	if tok := c.Subscribe(m.rx, m.cfg.QoS, m.onMessage); tok.Wait() && tok.Error() != nil {
		m.log.Error("subscribe failed", "topic", m.rx, "err", tok.Error())
	}
	m.Publish(protocol.NewHello(m.cfg.Capabilities))
}

func (m *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	m.log.Warn("mqtt connection lost", "err", err)
}

// onMessage delivers frames in arrival order; the router holds back
// the next frame until the handler returns.
func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.handler(msg.Payload())
}
