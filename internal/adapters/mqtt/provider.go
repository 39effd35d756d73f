// Package mqtt implements the ZoneProvider port over an MQTT broker. The
// heating gateway publishes each zone's state and schedule as retained
// messages; the provider caches the latest message per zone and serves Poll
// from that cache, so a tick never blocks on the broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/core/schedule"
	"github.com/example/hearthwatch/internal/core/snapshot"
	"github.com/example/hearthwatch/internal/ports/secondary"
)

// Ensure Provider implements the interface
var _ secondary.ZoneProvider = (*Provider)(nil)

const connectTimeout = 10 * time.Second

// zoneStateMessage is the gateway's per-zone state payload, published
// retained on <prefix>/zones/<zone_id>/state.
type zoneStateMessage struct {
	Name            string    `json:"name"`
	Timestamp       time.Time `json:"timestamp"`
	CurrentTemp     float64   `json:"current_temp"`
	TargetTemp      float64   `json:"target_temp"`
	Mode            string    `json:"mode"`
	ScheduledTarget float64   `json:"scheduled_target"`
	Available       bool      `json:"available"`
}

// scheduleMessage is the gateway's per-zone weekly schedule, published
// retained on <prefix>/zones/<zone_id>/schedule.
type scheduleMessage struct {
	Switchpoints []struct {
		Day      int     `json:"day"` // 0 = Sunday
		Time     string  `json:"time"`
		Setpoint float64 `json:"setpoint"`
	} `json:"switchpoints"`
}

// Provider subscribes to the gateway's zone topics and caches the latest
// state and schedule per zone.
type Provider struct {
	client paho.Client
	prefix string
	logger *zap.Logger

	mu        sync.RWMutex
	states    map[string]snapshot.Snapshot
	schedules map[string]schedule.Schedule
}

// NewProvider connects to the broker and subscribes to the zone topics.
// Subscriptions are re-established on every reconnect.
func NewProvider(brokerURL, topicPrefix string, logger *zap.Logger) (*Provider, error) {
	p := &Provider{
		prefix:    strings.TrimSuffix(topicPrefix, "/"),
		logger:    logger,
		states:    make(map[string]snapshot.Snapshot),
		schedules: make(map[string]schedule.Schedule),
	}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("hearthwatch-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetOnConnectHandler(p.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("broker connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to broker %s", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", brokerURL, err)
	}
	return p, nil
}

func (p *Provider) subscribe(client paho.Client) {
	subs := map[string]paho.MessageHandler{
		p.prefix + "/zones/+/state":    p.handleState,
		p.prefix + "/zones/+/schedule": p.handleSchedule,
	}
	for topic, handler := range subs {
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			p.logger.Error("subscribe failed",
				zap.String("topic", topic), zap.Error(token.Error()))
		}
	}
}

// zoneIDFromTopic extracts the zone id from <prefix>/zones/<id>/<leaf>.
func zoneIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

func (p *Provider) handleState(_ paho.Client, msg paho.Message) {
	zoneID := zoneIDFromTopic(msg.Topic())
	if zoneID == "" {
		return
	}

	var m zoneStateMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Warn("unparseable state message",
			zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	snap := snapshot.Snapshot{
		ZoneID:          zoneID,
		ZoneName:        m.Name,
		Timestamp:       ts.UTC().Truncate(time.Second),
		CurrentTemp:     m.CurrentTemp,
		TargetTemp:      m.TargetTemp,
		Mode:            snapshot.ParseMode(m.Mode),
		ScheduledTarget: m.ScheduledTarget,
		Available:       m.Available,
	}

	p.mu.Lock()
	p.states[zoneID] = snap
	p.mu.Unlock()
}

func (p *Provider) handleSchedule(_ paho.Client, msg paho.Message) {
	zoneID := zoneIDFromTopic(msg.Topic())
	if zoneID == "" {
		return
	}

	var m scheduleMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Warn("unparseable schedule message",
			zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	points := make([]schedule.Switchpoint, 0, len(m.Switchpoints))
	for _, sp := range m.Switchpoints {
		minute, err := schedule.MinuteOf(sp.Time)
		if err != nil || sp.Day < 0 || sp.Day > 6 {
			p.logger.Warn("invalid switchpoint dropped",
				zap.String("zone", zoneID),
				zap.Int("day", sp.Day),
				zap.String("time", sp.Time))
			continue
		}
		points = append(points, schedule.Switchpoint{
			Day:      time.Weekday(sp.Day),
			Minute:   minute,
			Setpoint: sp.Setpoint,
		})
	}

	p.mu.Lock()
	p.schedules[zoneID] = schedule.New(points)
	p.mu.Unlock()
}

// Poll returns the latest cached reading of every zone.
func (p *Provider) Poll(ctx context.Context) (*secondary.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.client.IsConnected() {
		return nil, fmt.Errorf("not connected to broker")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	batch := &secondary.Batch{
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Snapshots: make([]snapshot.Snapshot, 0, len(p.states)),
	}
	for _, snap := range p.states {
		batch.Snapshots = append(batch.Snapshots, snap)
	}
	return batch, nil
}

// Schedules returns the latest cached schedule per zone.
func (p *Provider) Schedules(ctx context.Context) (map[string]schedule.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]schedule.Schedule, len(p.schedules))
	for id, s := range p.schedules {
		out[id] = s
	}
	return out, nil
}

// Close disconnects from the broker.
func (p *Provider) Close() error {
	p.client.Disconnect(250)
	return nil
}
