package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/exp/slog"

	"robohal-go/errcode"
	"robohal-go/types"
)

// Client is the part of paho.Client the sink uses.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// DefaultPublishTimeout bounds the wait for one publish acknowledgement.
const DefaultPublishTimeout = 2 * time.Second

type MQTTConfig struct {
	Broker   string // tcp://host:1883, mqtt://, ssl://, ws://
	Topic    string // topic prefix
	ClientID string // default robohal-<node>
	QoS      byte
	Node     string // default NodeID()
	Timeout  time.Duration
	Logger   *slog.Logger
}

// MQTT publishes each report as retained JSON on
// <topic>/<node>/<device>[/<id>].
type MQTT struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	log     *slog.Logger
}

// ClientOptionsFromURL builds paho options from a broker URL. User info in
// the URL becomes credentials, ?client-id= the client id, and the path is
// returned as an extra topic prefix.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if id := u.Query().Get("client-id"); id != "" {
		opts.SetClientID(id)
	}
	return opts, strings.Trim(u.Path, "/"), nil
}

// NewMQTT builds a paho client for cfg. Call Connect before publishing.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errcode.New(errcode.Configuration, "telemetry.mqtt", "no broker")
	}
	opts, pathPrefix, err := ClientOptionsFromURL(cfg.Broker)
	if err != nil {
		return nil, errcode.Wrap(errcode.Configuration, "telemetry.mqtt", err)
	}
	if cfg.Node == "" {
		cfg.Node = NodeID()
	}
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else if opts.ClientID == "" {
		opts.SetClientID("robohal-" + cfg.Node)
	}
	m := newMQTT(nil, joinTopic(pathPrefix, cfg.Topic, cfg.Node), cfg)
	opts.SetOnConnectHandler(func(paho.Client) { m.log.Info("connected", "broker", cfg.Broker) })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) { m.log.Warn("connection lost", "err", err) })
	m.client = paho.NewClient(opts)
	return m, nil
}

// NewMQTTWithClient wraps an existing client; prefix is used as given.
func NewMQTTWithClient(c Client, prefix string, cfg MQTTConfig) *MQTT {
	return newMQTT(c, prefix, cfg)
}

func newMQTT(c Client, prefix string, cfg MQTTConfig) *MQTT {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &MQTT{client: c, prefix: prefix, qos: cfg.QoS, timeout: timeout, log: log.With("svc", "telemetry")}
}

// Connect starts the connection and waits for the first attempt or ctx.
// With connect-retry enabled paho keeps trying in the background after an
// error is returned here.
func (m *MQTT) Connect(ctx context.Context) error {
	tok := m.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return errcode.Wrap(errcode.Transport, "telemetry.connect", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Topic returns the topic a report is published on.
func (m *MQTT) Topic(r types.Report) string {
	t := joinTopic(m.prefix, r.Device)
	if r.ID != nil {
		t = fmt.Sprintf("%s/%d", t, *r.ID)
	}
	return t
}

func (m *MQTT) Publish(r types.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errcode.Wrap(errcode.Error, "telemetry.encode", err)
	}
	tok := m.client.Publish(m.Topic(r), m.qos, true, payload)
	if !tok.WaitTimeout(m.timeout) {
		return errcode.New(errcode.Timeout, "telemetry.publish", m.Topic(r))
	}
	if err := tok.Error(); err != nil {
		return errcode.Wrap(errcode.Transport, "telemetry.publish", err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func joinTopic(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
