// Package polyglot reports node changes to a Polyglot style controller
// that listens for JSON commands on an MQTT topic.
package polyglot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultTopic string = "udi/pg3/ns/command/acurite"

const publishTimeout time.Duration = 5 * time.Second

var ErrPublishTimeout = errors.New("timed out waiting for publish")

type Config struct {
	BrokerURL string
	User      string
	Password  string
	Topic     string
}

// Publisher is the subset of mqtt.Client used by the reporter.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type driverMessage struct {
	Address string  `json:"address,omitempty"`
	Driver  string  `json:"driver"`
	Value   float64 `json:"value"`
	UOM     int     `json:"uom"`
}

type addNodeMessage struct {
	Address   string          `json:"address"`
	Name      string          `json:"name"`
	NodeDefID string          `json:"nodedefid"`
	Primary   string          `json:"primaryNode"`
	Drivers   []driverMessage `json:"drivers"`
}

type command struct {
	AddNode []addNodeMessage `json:"addnode,omitempty"`
	Set     []driverMessage  `json:"set,omitempty"`
}

func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID("integration-acurite-" + uuid.NewString())
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			client.Disconnect(0)
			return nil, ctx.Err()
		default:
		}
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return client, nil
}

type reporter struct {
	pub   Publisher
	topic string
}

func NewReporter(pub Publisher, topic string) nodes.Reporter {
	if topic == "" {
		topic = DefaultTopic
	}
	return &reporter{pub: pub, topic: topic}
}

func (r *reporter) NodeAdded(ctx context.Context, node nodes.Snapshot) error {
	msg := addNodeMessage{
		Address:   node.Address,
		Name:      node.Name,
		NodeDefID: node.NodeDefID,
		Primary:   node.Primary,
		Drivers:   make([]driverMessage, 0, len(node.Drivers)),
	}

	for _, d := range node.Drivers {
		msg.Drivers = append(msg.Drivers, driverMessage{Driver: d.Driver, Value: d.Value, UOM: d.UOM})
	}

	return r.publish(ctx, command{AddNode: []addNodeMessage{msg}})
}

func (r *reporter) DriversChanged(ctx context.Context, node nodes.Snapshot, drivers []string) error {
	cmd := command{}

	for _, id := range drivers {
		d, ok := node.Driver(id)
		if !ok {
			continue
		}
		cmd.Set = append(cmd.Set, driverMessage{Address: node.Address, Driver: d.Driver, Value: d.Value, UOM: d.UOM})
	}

	if len(cmd.Set) == 0 {
		return nil
	}

	return r.publish(ctx, cmd)
}

func (r *reporter) publish(ctx context.Context, cmd command) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)
	logger.Debug().Str("topic", r.topic).Msg(string(b))

	token := r.pub.Publish(r.topic, 1, false, b)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}

	return token.Error()
}
