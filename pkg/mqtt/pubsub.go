package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout    = 10
	reconnTimeout  = 1
	disconnTimeout = 250

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	errPublishTimeout     = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout   = errors.New("failed to subscribe due to timeout reached")
	errUnsubscribeTimeout = errors.New("failed to unsubscribe due to timeout reached")
	errEmptyTopic         = errors.New("empty topic")
	errEmptyID            = errors.New("empty ID")
	errTimeout            = errors.New("timeout")
	errNotObject          = errors.New("payload is not a JSON object")

	statusTopicTemplate = "m/%s/c/%s/control/coordinator/status"
)

// Handler receives the topic and the JSON-decoded payload of a message.
type Handler func(topic string, msg map[string]any) error

type PubSub interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client      mqtt.Client
	id          string
	qos         byte
	timeout     time.Duration
	statusTopic string
	logger      *slog.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewPubSub connects to the broker. When channelID is set the client announces
// a retained online status on every connect and leaves an offline will behind.
func NewPubSub(url string, qos byte, id, username, password, domainID, channelID string, timeout time.Duration, logger *slog.Logger) (PubSub, error) {
	if id == "" {
		return nil, errEmptyID
	}

	ps := &pubsub{
		id:      id,
		qos:     qos,
		timeout: timeout,
		logger:  logger,
		subs:    make(map[string]Handler),
	}
	if channelID != "" {
		ps.statusTopic = fmt.Sprintf(statusTopicTemplate, domainID, channelID)
	}

	client, err := ps.connect(url, username, password)
	if err != nil {
		return nil, err
	}
	ps.client = client

	return ps, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return errEmptyTopic
	}

	data, err := encode(msg)
	if err != nil {
		return err
	}

	token := ps.client.Publish(topic, ps.qos, false, data)
	if token.Error() != nil {
		return token.Error()
	}

	return ps.wait(ctx, token, errPublishTimeout)
}

// Subscribe registers handler for topic. Subscriptions are restored after a reconnect.
func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	token := ps.client.Subscribe(topic, ps.qos, ps.mqttHandler(handler))
	if token.Error() != nil {
		return token.Error()
	}
	if err := ps.wait(ctx, token, errSubscribeTimeout); err != nil {
		return err
	}

	ps.mu.Lock()
	ps.subs[topic] = handler
	ps.mu.Unlock()

	return nil
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	ps.mu.Lock()
	delete(ps.subs, topic)
	ps.mu.Unlock()

	token := ps.client.Unsubscribe(topic)
	if token.Error() != nil {
		return token.Error()
	}

	return ps.wait(ctx, token, errUnsubscribeTimeout)
}

// Disconnect publishes the offline status, since a clean disconnect suppresses the will.
func (ps *pubsub) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ps.statusTopic != "" && ps.client.IsConnected() {
		token := ps.client.Publish(ps.statusTopic, ps.qos, true, statusPayload(statusOffline, ps.id))
		if err := ps.wait(ctx, token, errPublishTimeout); err != nil {
			ps.logger.Warn("failed to publish offline status", slog.Any("error", err))
		}
	}
	ps.client.Disconnect(disconnTimeout)

	return nil
}

// wait blocks on the token until it completes, the client timeout elapses or ctx ends.
func (ps *pubsub) wait(ctx context.Context, token mqtt.Token, timeoutErr error) error {
	timer := time.NewTimer(ps.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return timeoutErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ps *pubsub) connect(address, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(address).
		SetClientID(ps.id).
		SetUsername(username).
		SetPassword(password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout * time.Second).
		SetMaxReconnectInterval(reconnTimeout * time.Minute)

	if ps.statusTopic != "" {
		opts.SetBinaryWill(ps.statusTopic, statusPayload(statusOffline, ps.id), ps.qos, true)
	}

	opts.SetOnConnectHandler(ps.onConnect)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		args := []any{}
		if err != nil {
			args = append(args, slog.Any("error", err))
		}

		ps.logger.Warn("MQTT connection lost", args...)
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, options *mqtt.ClientOptions) {
		args := []any{}
		if options != nil {
			args = append(args,
				slog.String("client_id", options.ClientID),
				slog.String("username", options.Username),
			)
		}

		ps.logger.Info("MQTT reconnecting", args...)
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}

	if ok := token.WaitTimeout(ps.timeout); !ok {
		return nil, errors.New("timeout reached while connecting to MQTT broker")
	}
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}

	return client, nil
}

// onConnect runs on paho's connection goroutine, so it must not wait on tokens.
func (ps *pubsub) onConnect(client mqtt.Client) {
	ps.logger.Info("MQTT connection established")

	if ps.statusTopic != "" {
		client.Publish(ps.statusTopic, ps.qos, true, statusPayload(statusOnline, ps.id))
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	for topic, h := range ps.subs {
		client.Subscribe(topic, ps.qos, ps.mqttHandler(h))
		ps.logger.Debug("MQTT subscription restored", slog.String("topic", topic))
	}
}

func (ps *pubsub) mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		if err := dispatch(h, m.Topic(), m.Payload()); err != nil {
			ps.logger.Warn("failed to handle MQTT message",
				slog.String("topic", m.Topic()),
				slog.Any("error", err),
			)
		}

		m.Ack()
	}
}

func dispatch(h Handler, topic string, payload []byte) error {
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	if msg == nil {
		return errNotObject
	}

	return h(topic, msg)
}

// encode passes raw bytes through and JSON-encodes anything else.
func encode(msg any) ([]byte, error) {
	if b, ok := msg.([]byte); ok {
		return b, nil
	}

	return json.Marshal(msg)
}

func statusPayload(status, id string) []byte {
	data, _ := json.Marshal(map[string]string{
		"status":         status,
		"coordinator_id": id,
	})

	return data
}
