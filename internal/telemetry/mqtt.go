package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/experiment"
)

// Dial starts connecting to the broker described by cfg and returns without
// waiting. The client keeps retrying in the background, so an unreachable
// broker never holds up the caller. onConnect runs on its own goroutine after
// every successful connect, reconnects included.
func Dial(cfg config.MQTTConfig, log diag.Sink, onConnect func(mqtt.Client)) mqtt.Client {
	if log == nil {
		log = diag.Discard
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWriteTimeout(2 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		log.Logf("telemetry: connected to mqtt broker %s", cfg.Broker)
		if onConnect != nil {
			onConnect(c)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Logf("telemetry: mqtt connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	log.Logf("telemetry: connecting to mqtt broker %s:%d", cfg.Broker, cfg.Port)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Logf("telemetry: mqtt connect: %v", err)
		}
	}()
	return client
}

type outbound struct {
	topic   string
	payload any
}

// Bridge maps MQTT topics onto the loop's request contract:
//
//	<prefix>/cmd/start    start a run
//	<prefix>/cmd/tuning   JSON tuning patch
//	<prefix>/status       phase changes and command replies
//	<prefix>/tuning       tuning in effect after a write
//	<prefix>/runs         each finished run with its samples
type Bridge struct {
	client  mqtt.Client
	prefix  string
	loop    *experiment.Client
	log     diag.Sink
	timeout time.Duration

	out   chan outbound
	phase string
}

func NewBridge(client mqtt.Client, prefix string, loop *experiment.Client, log diag.Sink) *Bridge {
	if log == nil {
		log = diag.Discard
	}
	return &Bridge{
		client:  client,
		prefix:  prefix,
		loop:    loop,
		log:     log,
		timeout: DefaultTimeout,
		out:     make(chan outbound, 16),
	}
}

func (b *Bridge) topic(suffix string) string { return b.prefix + "/" + suffix }

// Connect dials the broker in the background and renews the command
// subscriptions on every connect.
func (b *Bridge) Connect(cfg config.MQTTConfig) {
	b.client = Dial(cfg, b.log, b.OnConnect)
}

// OnConnect registers the command handlers on c. A clean session drops
// subscriptions, so this runs again after each reconnect.
func (b *Bridge) OnConnect(c mqtt.Client) {
	if err := b.subscribe(c); err != nil {
		b.log.Logf("%v", err)
	}
}

func (b *Bridge) subscribe(c mqtt.Client) error {
	subs := map[string]mqtt.MessageHandler{
		b.topic("cmd/start"):  b.handleStart,
		b.topic("cmd/tuning"): b.handleTuning,
	}
	var errs error
	for topic, handler := range subs {
		token := c.Subscribe(topic, 1, handler)
		if !token.WaitTimeout(5 * time.Second) {
			errs = multierr.Append(errs, fmt.Errorf("telemetry: subscribe %s timed out", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("telemetry: subscribe %s: %w", topic, err))
			continue
		}
		b.log.Logf("telemetry: subscribed to %s", topic)
	}
	return errs
}

// Run publishes queued messages until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.out:
			b.publish(m.topic, m.payload)
		}
	}
}

// publish drops messages while the broker is unreachable.
func (b *Bridge) publish(topic string, v any) {
	if !b.client.IsConnectionOpen() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Logf("telemetry: encoding %s: %v", topic, err)
		return
	}
	b.client.Publish(topic, 0, false, data)
}

func (b *Bridge) enqueue(topic string, v any) {
	select {
	case b.out <- outbound{topic: topic, payload: v}:
	default:
		b.log.Logf("telemetry: mqtt queue full, dropped %s", topic)
	}
}

func (b *Bridge) OnStep(st experiment.Status) {
	phase := st.Phase.String()
	if phase == b.phase {
		return
	}
	b.phase = phase
	b.enqueue(b.topic("status"), st)
}

func (b *Bridge) OnRunComplete(run int, res experiment.Result) {
	b.enqueue(b.topic("runs"), struct {
		Run int `json:"run"`
		experiment.Result
	}{run, res})
}

func (b *Bridge) handleStart(_ mqtt.Client, _ mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	st, err := b.loop.Start(ctx)
	if err != nil {
		b.log.Logf("telemetry: mqtt start: %v", err)
		b.enqueue(b.topic("status"), errorResponse{Error: err.Error()})
		return
	}
	b.enqueue(b.topic("status"), st)
}

func (b *Bridge) handleTuning(_ mqtt.Client, msg mqtt.Message) {
	var p config.Patch
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		b.log.Logf("telemetry: bad tuning payload: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	t, err := b.loop.SetTuning(ctx, p)
	if err != nil {
		b.log.Logf("telemetry: mqtt tuning: %v", err)
		return
	}
	b.enqueue(b.topic("tuning"), t)
}

func (b *Bridge) Close() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}
