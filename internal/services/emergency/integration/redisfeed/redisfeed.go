// Package redisfeed reads responder availability that dispatch desks keep in
// Redis.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/egress/internal/services/emergency/domain/escalation"
	"github.com/redis/go-redis/v9"
)

const (
	// StatusKey is the hash of contact type to current status.
	StatusKey = "egress:contacts:status"
	// StatusChannel carries status changes as they happen.
	StatusChannel = "egress:contact-status"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// HashReader is the subset of the redis client used for polling.
type HashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// StatusSink accepts pushed status changes.
type StatusSink interface {
	ContactStatusUpdate(contactType escalation.ContactType, status escalation.ContactStatus) error
}

// Feed implements app.StatusFeed over a Redis hash and listens for pushed
// updates on a pub/sub channel.
type Feed struct {
	hash   HashReader
	client *redis.Client
}

// Connect opens a Redis client and checks it answers.
func Connect(ctx context.Context, cfg Config) (*Feed, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Feed{hash: client, client: client}, nil
}

// New builds a poll-only feed over hash.
func New(hash HashReader) *Feed {
	return &Feed{hash: hash}
}

// ContactStatuses returns the statuses currently stored in StatusKey.
func (f *Feed) ContactStatuses(ctx context.Context) (map[escalation.ContactType]escalation.ContactStatus, error) {
	values, err := f.hash.HGetAll(ctx, StatusKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StatusKey, err)
	}
	statuses := make(map[escalation.ContactType]escalation.ContactStatus, len(values))
	for field, value := range values {
		contactType := escalation.ContactType(strings.TrimSpace(field))
		statuses[contactType] = escalation.ContactStatus(strings.TrimSpace(value))
	}
	return statuses, nil
}

type statusMessage struct {
	ContactType string `json:"contact_type"`
	Status      string `json:"status"`
}

// Listen applies pushed status changes to sink until ctx ends. It requires a
// feed created by Connect.
func (f *Feed) Listen(ctx context.Context, sink StatusSink) error {
	if f.client == nil {
		return errors.New("redis client is not configured")
	}
	pubsub := f.client.Subscribe(ctx, StatusChannel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("close redis subscription: %v", err)
		}
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", StatusChannel, err)
	}
	consume(ctx, pubsub.Channel(), sink)
	return nil
}

func consume(ctx context.Context, messages <-chan *redis.Message, sink StatusSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			apply(msg.Payload, sink)
		}
	}
}

func apply(payload string, sink StatusSink) {
	var update statusMessage
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		log.Printf("decode contact status: %v", err)
		return
	}
	contactType := escalation.ContactType(update.ContactType)
	if err := sink.ContactStatusUpdate(contactType, escalation.ContactStatus(update.Status)); err != nil {
		log.Printf("apply contact status %s: %v", contactType, err)
	}
}

// Close releases the client opened by Connect.
func (f *Feed) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
