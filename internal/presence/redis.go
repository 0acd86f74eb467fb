package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"campus-chat/internal/models"
)

const deliveryChannel = "chat:deliver"

// Directory mirrors online status into Redis so multiple gateway
// instances share one presence view. Entries expire; each instance
// refreshes its own users' keys while their connections live, so a
// crashed instance's users fall offline after the TTL.
type Directory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDirectory(client *redis.Client, ttl time.Duration) *Directory {
	return &Directory{client: client, ttl: ttl}
}

func (d *Directory) key(userID int) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (d *Directory) Announce(ctx context.Context, userID int) error {
	return d.client.Set(ctx, d.key(userID), "1", d.ttl).Err()
}

func (d *Directory) Refresh(ctx context.Context, userID int) error {
	return d.client.Expire(ctx, d.key(userID), d.ttl).Err()
}

func (d *Directory) Revoke(ctx context.Context, userID int) error {
	return d.client.Del(ctx, d.key(userID)).Err()
}

func (d *Directory) Online(ctx context.Context, userID int) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// envelope wraps a socket event with its target user for pub/sub
// transport between gateway instances.
type envelope struct {
	RecipientID int            `json:"recipient_id"`
	Event       models.WSEvent `json:"event"`
}

// Fanout relays socket events between gateway instances over a Redis
// pub/sub channel. An instance publishes when the recipient is online
// somewhere else; every instance subscribes and delivers to whichever
// local connection matches.
type Fanout struct {
	client *redis.Client
}

func NewFanout(client *redis.Client) *Fanout {
	return &Fanout{client: client}
}

func (f *Fanout) Publish(ctx context.Context, recipientID int, ev models.WSEvent) error {
	payload, err := json.Marshal(envelope{RecipientID: recipientID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshaling fanout envelope: %w", err)
	}
	return f.client.Publish(ctx, deliveryChannel, payload).Err()
}

// Subscribe blocks, invoking deliver for every envelope published by
// any instance, until ctx is cancelled.
func (f *Fanout) Subscribe(ctx context.Context, deliver func(recipientID int, ev models.WSEvent)) {
	pubsub := f.client.Subscribe(ctx, deliveryChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			deliver(env.RecipientID, env.Event)
		}
	}
}
