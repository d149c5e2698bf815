package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes events over Redis pub/sub, one PUBLISH per
// channel. Subscribers (the WebSocket fanout, external consumers) receive the
// same wire envelope on every channel.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

// Envelope is the JSON frame written to each channel.
type Envelope struct {
	Event   string         `json:"event"`
	Channel string         `json:"channel"`
	Data    MessagePayload `json:"data"`
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	for _, ch := range ev.Channels {
		frame, err := json.Marshal(Envelope{
			Event:   ev.Name,
			Channel: ch,
			Data:    ev.Payload,
		})
		if err != nil {
			return err
		}
		if err := b.rdb.Publish(ctx, ch, frame).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", ch, err)
		}
	}
	return nil
}
