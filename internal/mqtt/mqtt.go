package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pwsrelay/internal/config"
	"pwsrelay/internal/modules/weather/types"
)

var ErrNoStation = errors.New("no station id in topic or payload")

// queueSize bounds the readings waiting for the handler. Messages arriving
// while it is full are dropped.
const queueSize = 256

type message struct {
	topic   string
	payload []byte
}

// Handler processes one decoded reading for stationID.
type Handler func(ctx context.Context, stationID string, p types.RawReadingPayload) error

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	// ctx is handed to the handler; it ends when Disconnect is called.
	ctx    context.Context
	cancel context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once

	// queue decouples paho's router goroutine from the handler, which may
	// block on storage, publishing and uploads.
	queue   chan message
	handler Handler
}

// SetHandler sets the callback for incoming readings. Call it before Connect.
func (s *Subscriber) SetHandler(h Handler) {
	s.handler = h
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) (*Subscriber, error) {
	if cfg.MQTTTopic == "" {
		return nil, errors.New("mqtt topic is empty")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		queue:  make(chan message, queueSize),
	}
	go s.run()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// Clean sessions lose subscriptions on reconnect.
		if s.handler != nil {
			go func() {
				if err := s.subscribe(); err != nil {
					logger.Error("mqtt resubscribe failed", "topic", cfg.MQTTTopic, "error", err)
				}
			}()
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect establishes the broker connection. Subscription to the configured
// topic happens from the connect callback, so it is repeated after every
// reconnect.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			break
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.enqueue(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// enqueue hands a message to the worker without blocking the caller.
func (s *Subscriber) enqueue(topic string, payload []byte) bool {
	select {
	case s.queue <- message{topic: topic, payload: payload}:
		return true
	default:
		s.logger.Warn("mqtt queue full, dropping message", "topic", topic, "queued", len(s.queue))
		return false
	}
}

// run processes queued messages in arrival order until Disconnect.
func (s *Subscriber) run() {
	for {
		select {
		case <-s.stopCh:
			return
		case m := <-s.queue:
			s.handleMessage(m.topic, m.payload)
		}
	}
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	stationID, p, err := Decode(topic, payload)
	if err != nil {
		s.logger.Warn("dropping mqtt message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}
	if s.handler == nil {
		return
	}
	if err := s.handler(s.ctx, stationID, p); err != nil {
		s.logger.Error("reading handler failed",
			"topic", topic,
			"station_id", stationID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed reading", "station_id", stationID)
}

// Decode parses a raw reading message. The station ID comes from a topic of
// the form stations/{id}/raw, falling back to the payload's station_id.
func Decode(topic string, payload []byte) (string, types.RawReadingPayload, error) {
	var p types.RawReadingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", p, fmt.Errorf("parse payload: %w", err)
	}
	stationID := StationFromTopic(topic)
	if stationID == "" {
		stationID = strings.TrimSpace(p.StationID)
	}
	if stationID == "" {
		return "", p, ErrNoStation
	}
	return stationID, p, nil
}

// StationFromTopic returns the {id} segment of stations/{id}/raw, or "".
func StationFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "stations" || parts[2] != "raw" {
		return ""
	}
	return parts[1]
}

// ObservationTopic is where normalized observations for stationID are published.
func ObservationTopic(stationID string) string {
	return "stations/" + stationID + "/observation"
}

// Publish sends obs as a retained QoS 1 message on its observation topic.
func (s *Subscriber) Publish(ctx context.Context, obs types.Observation) error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	body, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	topic := ObservationTopic(obs.StationID)
	token := s.client.Publish(topic, 1, true, body)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.cancel()

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Disconnect without holding s.mu to avoid lock contention/deadlocks.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
