// Package bridge translates between the MQTT wire format and typed domain
// events, isolating the rest of the service from topic and payload details.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
)

const (
	hitFilter      = "targets/+/+/hit"
	announceFilter = "targets/+/+/announce"

	publishTimeout = 2 * time.Second
)

// Handler receives each decoded inbound event. It must not block: it is
// invoked from the MQTT client's receive goroutine and should only hand the
// event off to the processing loop.
type Handler func(model.TargetEvent)

// Options configures the transport connection.
type Options struct {
	BrokerURL string
	Keepalive time.Duration
	ClientID  string
}

// Bridge owns the MQTT client connection. Reconnects and backoff are the
// client library's job; the bridge only re-subscribes when a connection is
// (re)established.
type Bridge struct {
	logger  *slog.Logger
	client  mqtt.Client
	handler Handler
}

// New constructs a bridge. Start must be called before events flow.
func New(opts Options, logger *slog.Logger, handler Handler) *Bridge {
	b := &Bridge{logger: logger, handler: handler}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "airsoft-server-" + uuid.NewString()
	}

	keepalive := opts.Keepalive
	if keepalive <= 0 {
		keepalive = 45 * time.Second
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(clientID).
		SetKeepAlive(keepalive).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	mqttOpts.SetOnConnectHandler(func(c mqtt.Client) {
		b.logger.Info("mqtt connected", "broker", opts.BrokerURL)
		b.subscribe(c)
	})
	mqttOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	})

	b.client = mqtt.NewClient(mqttOpts)
	return b
}

// Start connects to the broker. Subscriptions are installed by the connect
// handler so they survive reconnects.
func (b *Bridge) Start() error {
	token := b.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop() {
	b.client.Disconnect(250)
}

func (b *Bridge) subscribe(c mqtt.Client) {
	filters := map[string]byte{
		hitFilter:      0,
		announceFilter: 0,
	}
	token := c.SubscribeMultiple(filters, b.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		b.logger.Error("mqtt subscribe failed", "error", err)
		return
	}
	b.logger.Info("mqtt subscribed", "filters", []string{hitFilter, announceFilter})
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	systemID, targetID, kind, ok := ParseTopic(msg.Topic())
	if !ok {
		b.logger.Debug("ignoring message on unexpected topic", "topic", msg.Topic())
		return
	}

	event := model.TargetEvent{
		Kind:       kind,
		SystemID:   systemID,
		TargetID:   targetID,
		ReceivedAt: time.Now().UTC(),
	}

	if kind == model.EventHit {
		amp, err := DecodeHitAmp(msg.Payload())
		if err != nil {
			// Tolerated: a mangled payload counts as a hit with no amplitude.
			b.logger.Warn("hit payload decode failed", "topic", msg.Topic(), "error", err)
		}
		event.Amp = amp
	}

	if b.handler != nil {
		b.handler(event)
	}
}

// PublishLED sends {"led_color","led_time"} to the target's command topic.
// Delivery is best-effort QoS 0; a failure is reported for logging but the
// stored LED state already reflects the operator's intent.
func (b *Bridge) PublishLED(systemID, targetID, color string, timeMS int) error {
	payload, err := json.Marshal(struct {
		LEDColor string `json:"led_color"`
		LEDTime  int    `json:"led_time"`
	}{LEDColor: color, LEDTime: timeMS})
	if err != nil {
		return fmt.Errorf("encode led command: %w", err)
	}

	topic := CommandTopic(systemID, targetID)
	token := b.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// CommandTopic returns the outbound command topic for a target.
func CommandTopic(systemID, targetID string) string {
	return fmt.Sprintf("targets/%s/%s/cmd", systemID, targetID)
}

// ParseTopic splits "targets/{system}/{target}/{hit|announce}" into its parts.
func ParseTopic(topic string) (systemID, targetID string, kind model.EventKind, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "targets" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	switch parts[3] {
	case "hit":
		kind = model.EventHit
	case "announce":
		kind = model.EventAnnounce
	default:
		return "", "", "", false
	}
	return parts[1], parts[2], kind, true
}

// DecodeHitAmp extracts the optional amplitude from a hit payload. A missing
// or non-numeric amp field means no amplitude; malformed JSON is treated as an
// empty payload and reported through the returned error for logging only.
func DecodeHitAmp(payload []byte) (*int, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode hit payload: %w", err)
	}

	raw, present := body["amp"]
	if !present {
		return nil, nil
	}
	f, numeric := raw.(float64)
	if !numeric {
		return nil, nil
	}
	amp := int(f)
	return &amp, nil
}
