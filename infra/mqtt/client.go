// Package mqtt publishes reroute notifications to an MQTT broker with the
// Eclipse Paho client.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/reroute"
	"github.com/kilianp07/freightplan/infra/logger"
)

const (
	DefaultTopicPrefix = "freightplan/plans"
	DefaultMaxRetries  = 3
	DefaultBackoff     = 100 * time.Millisecond
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string `json:"broker" yaml:"broker" koanf:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id" koanf:"client_id"`
	Username    string `json:"username" yaml:"username" koanf:"username"`
	Password    string `json:"password" yaml:"password" koanf:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix" koanf:"topic_prefix"`
	QoS         byte   `json:"qos" yaml:"qos" koanf:"qos"`
	Retain      bool   `json:"retain" yaml:"retain" koanf:"retain"`
	UseTLS      bool   `json:"use_tls" yaml:"use_tls" koanf:"use_tls"`
	ClientCert  string `json:"client_cert" yaml:"client_cert" koanf:"client_cert"`
	ClientKey   string `json:"client_key" yaml:"client_key" koanf:"client_key"`
	CABundle    string `json:"ca_bundle" yaml:"ca_bundle" koanf:"ca_bundle"`
	// LWTTopic, when set, receives LWTPayload if the connection drops.
	LWTTopic   string      `json:"lwt_topic" yaml:"lwt_topic" koanf:"lwt_topic"`
	LWTPayload string      `json:"lwt_payload" yaml:"lwt_payload" koanf:"lwt_payload"`
	MaxRetries int         `json:"max_retries" yaml:"max_retries" koanf:"max_retries"`
	BackoffMS  int         `json:"backoff_ms" yaml:"backoff_ms" koanf:"backoff_ms"`
	TLSConfig  *tls.Config `json:"-" yaml:"-" koanf:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.ClientID == "" {
		c.ClientID = "freightplan-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = int(DefaultBackoff / time.Millisecond)
	}
}

// Validate checks the configuration after SetDefaults.
func (c Config) Validate() error {
	if c.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("mqtt tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}

// pahoClient is the subset of paho.Client used by the notifier.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Message is the JSON document published for each reroute.
type Message struct {
	MessageID string `json:"message_id"`
	PlanID    string `json:"plan_id"`
	Reason    string `json:"reason"`
	NewMode   string `json:"new_mode"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier publishes reroute notifications to {prefix}/{plan_id}/reroute.
type Notifier struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
	now        func() time.Time
}

var _ reroute.Notifier = (*Notifier)(nil)

// NewNotifier connects to the broker.
func NewNotifier(cfg Config) (*Notifier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-notifier")
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected to %s", cfg.Broker) }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) { log.Warnf("reconnecting to MQTT broker") }

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &Notifier{
		cli:        c,
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
		now:        time.Now,
	}, nil
}

// NewClientOptions builds Paho client options from cfg.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, true)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("ca bundle holds no certificate")
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topic returns the topic a plan's notifications are published on.
func (n *Notifier) Topic(planID string) string {
	return fmt.Sprintf("%s/%s/reroute", n.prefix, planID)
}

// Notify publishes p, retrying with exponential backoff. It gives up early
// when ctx is cancelled.
func (n *Notifier) Notify(ctx context.Context, p model.ReroutePayload) error {
	msg := Message{
		MessageID: uuid.NewString(),
		PlanID:    p.PlanID,
		Reason:    p.Reason,
		NewMode:   p.NewMode,
		Timestamp: n.now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := n.Topic(p.PlanID)

	var publishErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		token := n.cli.Publish(topic, n.qos, n.retain, payload)
		token.Wait()
		if publishErr = token.Error(); publishErr == nil {
			n.log.Debugf("sent reroute %s to %s", msg.MessageID, topic)
			return nil
		}
		n.log.Warnf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == n.maxRetries {
			break
		}
		timer := time.NewTimer(n.backoff * time.Duration(1<<attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(publishErr, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish to %s: %w", topic, publishErr)
}

// Close disconnects from the broker.
func (n *Notifier) Close() {
	if n.cli != nil && n.cli.IsConnected() {
		n.cli.Disconnect(250)
	}
}
