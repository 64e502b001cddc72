// Package notify publishes wall source state to an MQTT broker.
//
// Every state transition of a source is published, retained, to
// <prefix>/sources/<id>. The availability topic <prefix>/status carries
// "online" while connected and "offline" as the broker-side last will.
//
// Notify never blocks: transitions are queued and dropped when the queue is
// full, so a slow or absent broker never stalls a restart.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mmastrac/pi-frame/internal/status"
)

const (
	DefaultTopicPrefix = "pi-frame"
	DefaultQueueSize   = 64

	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"

	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

// ErrNotConnected is returned when a publish is attempted without a broker
// connection.
var ErrNotConnected = errors.New("notify: mqtt not connected")

// Options configure a Publisher.
type Options struct {
	Broker      string // tcp://host:1883, ssl://..., ws://...
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Encoding    string // json (default) or msgpack
	QoS         byte
	QueueSize   int
}

// publishClient is the part of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Stats counts publisher activity.
type Stats struct {
	Published uint64
	Dropped   uint64
	Failed    uint64
}

// Publisher forwards source state changes to MQTT.
type Publisher struct {
	opts   Options
	client publishClient
	conn   mqtt.Client
	encode func(any) ([]byte, error)
	queue  chan status.Source
	log    zerolog.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New returns a publisher for opts. It does not connect until Run.
func New(opts Options, logger zerolog.Logger) (*Publisher, error) {
	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.SetConnectTimeout(connectTimeout)
	co.SetWill(availabilityTopic(opts.TopicPrefix), "offline", opts.QoS, true)

	p := newPublisher(nil, opts, logger)
	co.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info().Str("broker", opts.Broker).Str("client_id", opts.ClientID).Msg("mqtt connection established")
		if err := p.publish(availabilityTopic(opts.TopicPrefix), "online"); err != nil {
			logger.Warn().Err(err).Msg("availability not published")
		}
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", opts.Broker).Msg("mqtt connection lost, will auto-reconnect")
	})

	p.conn = mqtt.NewClient(co)
	p.client = p.conn
	return p, nil
}

func newPublisher(client publishClient, opts Options, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		opts:   opts,
		client: client,
		queue:  make(chan status.Source, opts.QueueSize),
		log:    logger,
	}
	p.encode = encoder(opts.Encoding)
	return p
}

func normalize(opts Options) (Options, error) {
	if opts.Broker == "" {
		return opts, errors.New("notify: broker is required")
	}
	if !strings.Contains(opts.Broker, "://") {
		opts.Broker = "tcp://" + opts.Broker
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultTopicPrefix
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	switch opts.Encoding {
	case "":
		opts.Encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return opts, fmt.Errorf("notify: unknown encoding %q", opts.Encoding)
	}
	if opts.QoS > 2 {
		return opts, fmt.Errorf("notify: qos %d out of range", opts.QoS)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return opts, nil
}

func encoder(encoding string) func(any) ([]byte, error) {
	if encoding == EncodingMsgpack {
		return func(v any) ([]byte, error) {
			var buf bytes.Buffer
			enc := msgpack.NewEncoder(&buf)
			enc.SetCustomStructTag("json")
			if err := enc.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
	}
	return json.Marshal
}

func availabilityTopic(prefix string) string {
	return prefix + "/status"
}

// SourceTopic is the retained topic carrying the state of source id.
func (p *Publisher) SourceTopic(id string) string {
	return p.opts.TopicPrefix + "/sources/" + id
}

// Notify queues src for publishing. It never blocks; when the queue is full
// the update is dropped and counted.
func (p *Publisher) Notify(src status.Source) {
	select {
	case p.queue <- src:
	default:
		n := p.dropped.Add(1)
		p.log.Warn().Str("source_id", src.ID).Uint64("dropped", n).Msg("state update dropped, queue full")
	}
}

// Run connects to the broker and publishes queued updates until ctx is
// done, then marks the wall offline and disconnects.
func (p *Publisher) Run(ctx context.Context) error {
	if p.conn != nil {
		token := p.conn.Connect()
		if !token.WaitTimeout(connectTimeout) {
			// Connect retries in the background; queued updates wait.
			p.log.Warn().Str("broker", p.opts.Broker).Msg("mqtt broker not reachable yet, retrying")
		} else if err := token.Error(); err != nil {
			return fmt.Errorf("notify: connect %s: %w", p.opts.Broker, err)
		}
	}

	p.drain(ctx)

	if p.conn != nil {
		if p.conn.IsConnected() {
			if err := p.publish(availabilityTopic(p.opts.TopicPrefix), "offline"); err != nil {
				p.log.Warn().Err(err).Msg("offline state not published")
			}
		}
		p.conn.Disconnect(quiesceMillis)
	}

	st := p.Stats()
	p.log.Info().
		Uint64("published", st.Published).
		Uint64("dropped", st.Dropped).
		Uint64("failed", st.Failed).
		Msg("mqtt publisher stopped")
	return nil
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case src := <-p.queue:
			payload, err := p.encode(src)
			if err != nil {
				p.failed.Add(1)
				p.log.Error().Err(err).Str("source_id", src.ID).Msg("state update not encoded")
				continue
			}
			if err := p.publish(p.SourceTopic(src.ID), payload); err != nil {
				p.log.Warn().Err(err).Str("source_id", src.ID).Str("state", src.State).Msg("state update not published")
				continue
			}
			p.log.Debug().
				Str("source_id", src.ID).
				Str("state", src.State).
				Int("size", len(payload)).
				Msg("state update published")
		}
	}
}

func (p *Publisher) publish(topic string, payload any) error {
	if p.conn != nil && !p.conn.IsConnected() {
		p.failed.Add(1)
		return ErrNotConnected
	}
	token := p.client.Publish(topic, p.opts.QoS, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.failed.Add(1)
		return fmt.Errorf("notify: publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("notify: publish %s: %w", topic, err)
	}
	p.published.Add(1)
	return nil
}

// Stats returns a snapshot of the publisher counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}
