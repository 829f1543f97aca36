package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/dynamo"
)

const connectTimeout = 10 * time.Second

// Publisher is the part of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Subscriber is the part of mqtt.Client used by MQTTSource.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Connect dials the broker from cfg and waits for the session.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// MQTTSource caches the latest valid odometry sample. The message handler
// only stores the sample; the control loop reads it through Latest.
type MQTTSource struct {
	mu       sync.Mutex
	pose     dynamo.Pose
	ok       bool
	received int
	rejected int
	logger   *log.Logger
}

func NewMQTTSource(logger *log.Logger) *MQTTSource {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &MQTTSource{logger: logger}
}

func (s *MQTTSource) Subscribe(c Subscriber, topic string, qos byte) error {
	token := c.Subscribe(topic, qos, s.Handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	return nil
}

// Handle is the mqtt.MessageHandler for odometry messages.
func (s *MQTTSource) Handle(_ mqtt.Client, msg mqtt.Message) {
	q, err := DecodeOdometry(msg.Payload())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.rejected++
		s.logger.Printf("mqtt: drop sample on %s: %v", msg.Topic(), err)
		return
	}
	s.pose, s.ok = q, true
	s.received++
}

func (s *MQTTSource) Latest() (dynamo.Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose, s.ok
}

// Stats returns the number of accepted and rejected samples.
func (s *MQTTSource) Stats() (received, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.rejected
}

// MQTTSink publishes each command as a Twist message.
type MQTTSink struct {
	pub   Publisher
	topic string
	qos   byte
}

func NewMQTTSink(pub Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, qos: qos}
}

func (s *MQTTSink) Send(ctx context.Context, u dynamo.Command) error {
	payload, err := EncodeTwist(u)
	if err != nil {
		return err
	}

	token := s.pub.Publish(s.topic, s.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish %s: %w", s.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", s.topic, err)
	}
	return nil
}
