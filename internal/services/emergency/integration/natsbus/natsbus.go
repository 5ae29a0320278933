// Package natsbus carries coordinator traffic over NATS: evacuation alerts
// out, responder dispatch as request/reply, and incident reports in.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/egress/internal/services/emergency/app"
	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"github.com/nats-io/nats.go"
)

const (
	// SubjectEvacuationAlerts receives every evacuation broadcast.
	SubjectEvacuationAlerts = "egress.alerts.evacuation"
	// SubjectDispatchPrefix prefixes the per-contact dispatch subject.
	SubjectDispatchPrefix = "egress.dispatch."
	// SubjectEventReports carries classified incident reports from detection.
	SubjectEventReports = "egress.events.report"
)

const (
	defaultDispatchAttempts = 3
	defaultRetryInterval    = 100 * time.Millisecond
)

// Conn is the subset of *nats.Conn the client uses.
type Conn interface {
	Publish(subject string, data []byte) error
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
	// DispatchAttempts bounds request attempts per dispatch.
	DispatchAttempts uint
	RetryInterval    time.Duration
}

// EventHandler accepts inbound incident reports.
type EventHandler interface {
	HandleEvent(ctx context.Context, event incident.Event) (app.Outcome, error)
}

// Client publishes alerts and dispatches responders over NATS. It
// implements app.Broadcaster and escalation.Dispatcher.
type Client struct {
	conn          Conn
	closeConn     func()
	attempts      uint
	retryInterval time.Duration

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS and returns a client that owns the connection.
func Connect(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	opts := []nats.Option{nats.Name(cfg.Name)}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	client := New(nc, cfg)
	client.closeConn = nc.Close
	return client, nil
}

// New wraps an existing connection. The caller keeps ownership of conn.
func New(conn Conn, cfg Config) *Client {
	attempts := cfg.DispatchAttempts
	if attempts == 0 {
		attempts = defaultDispatchAttempts
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	return &Client{conn: conn, attempts: attempts, retryInterval: interval}
}

// alertMessage is the wire form of an evacuation alert.
type alertMessage struct {
	EventID     string            `json:"event_id"`
	ThreatLevel string            `json:"threat_level"`
	Message     string            `json:"message"`
	Messages    map[string]string `json:"messages,omitempty"`
	ZoneID      string            `json:"zone_id"`
	Location    incident.Location `json:"location"`
	Radius      float64           `json:"radius_meters"`
	Evacuate    bool              `json:"evacuate"`
	IssuedAt    time.Time         `json:"issued_at"`
}

// BroadcastEvacuationAlert publishes alert on SubjectEvacuationAlerts.
func (c *Client) BroadcastEvacuationAlert(_ context.Context, alert app.Alert) error {
	payload, err := json.Marshal(alertMessage{
		EventID:     alert.EventID,
		ThreatLevel: alert.ThreatLevel.String(),
		Message:     alert.Message,
		Messages:    alert.Messages,
		ZoneID:      alert.Zone.ID,
		Location:    alert.Zone.Location,
		Radius:      alert.Zone.RadiusMeters,
		Evacuate:    alert.Evacuate,
		IssuedAt:    alert.IssuedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := c.conn.Publish(SubjectEvacuationAlerts, payload); err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.EventID, err)
	}
	return nil
}

type dispatchRequest struct {
	EventID     string            `json:"event_id"`
	ContactType string            `json:"contact_type"`
	EventType   string            `json:"event_type"`
	Severity    string            `json:"severity"`
	ThreatLevel string            `json:"threat_level"`
	Location    incident.Location `json:"location"`
	ReportedAt  time.Time         `json:"reported_at"`
}

type dispatchReply struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ErrDispatchRejected reports a responder desk that declined the request.
var ErrDispatchRejected = errors.New("dispatch rejected")

// DispatchNotification requests acknowledgement from the contact's dispatch
// desk, retrying transport failures with exponential backoff. A rejection
// is final.
func (c *Client) DispatchNotification(ctx context.Context, contactType escalation.ContactType, event incident.Event, level incident.ThreatLevel) error {
	subject := SubjectDispatchPrefix + string(contactType)
	payload, err := json.Marshal(dispatchRequest{
		EventID:     event.ID,
		ContactType: string(contactType),
		EventType:   string(event.Type),
		Severity:    string(event.Severity),
		ThreatLevel: level.String(),
		Location:    event.Location,
		ReportedAt:  event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		msg, err := c.conn.RequestWithContext(ctx, subject, payload)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		var reply dispatchReply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decode dispatch reply: %w", err))
		}
		if !reply.Accepted {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w by %s: %s", ErrDispatchRejected, contactType, reply.Reason))
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.attempts))
	if err != nil {
		return fmt.Errorf("dispatch %s for %s: %w", contactType, event.ID, err)
	}
	return nil
}

type reportAck struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Level     string `json:"threat_level,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SubscribeReports feeds incident reports into handler. Reports that carry a
// reply subject are acknowledged with the outcome.
func (c *Client) SubscribeReports(ctx context.Context, handler EventHandler) error {
	if handler == nil {
		return errors.New("event handler is required")
	}
	sub, err := c.conn.Subscribe(SubjectEventReports, func(msg *nats.Msg) {
		ack := c.handleReport(ctx, handler, msg.Data)
		if msg.Reply == "" {
			return
		}
		payload, err := json.Marshal(ack)
		if err != nil {
			log.Printf("marshal report ack: %v", err)
			return
		}
		if err := c.conn.Publish(msg.Reply, payload); err != nil {
			log.Printf("reply to report: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectEventReports, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

func (c *Client) handleReport(ctx context.Context, handler EventHandler, data []byte) reportAck {
	var event incident.Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("decode incident report: %v", err)
		return reportAck{Error: "malformed report"}
	}
	out, err := handler.HandleEvent(ctx, event)
	if err != nil {
		log.Printf("incident report %s rejected: %v", event.ID, err)
		return reportAck{Error: err.Error()}
	}
	return reportAck{Accepted: true, Duplicate: out.Duplicate, Level: out.Level.String()}
}

// Close unsubscribes and closes the connection when the client owns it.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("unsubscribe %s: %v", sub.Subject, err)
		}
	}
	if c.closeConn != nil {
		c.closeConn()
	}
}
