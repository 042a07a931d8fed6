package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Redis-backed Bus, suitable for multi-instance deployments
// where progress publishers and subscribers may live in different processes.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus builds a RedisBus against the given connection URL (e.g.
// redis://localhost:6379/0) and verifies connectivity with a Ping.
func NewRedisBus(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{client: client}, nil
}

func progressKey(key string) string  { return "bus:progress:" + key }
func cancelKey(key string) string    { return "bus:cancel:" + key }
func channelKey(key string) string   { return "bus:progress:ch:" + key }

func (b *RedisBus) PublishProgress(ctx context.Context, key string, state ProgressState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, progressKey(key), data, Expiry)
	pipe.Publish(ctx, channelKey(key), data)
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBus) GetProgress(ctx context.Context, key string) (ProgressState, bool, error) {
	raw, err := b.client.Get(ctx, progressKey(key)).Bytes()
	if err == redis.Nil {
		return ProgressState{}, false, nil
	}
	if err != nil {
		return ProgressState{}, false, err
	}
	var state ProgressState
	if err := json.Unmarshal(raw, &state); err != nil {
		return ProgressState{}, false, err
	}
	return state, true, nil
}

func (b *RedisBus) SubscribeProgress(ctx context.Context, key string) (<-chan ProgressState, func()) {
	out := make(chan ProgressState, 8)
	sub := b.client.Subscribe(ctx, channelKey(key))
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var state ProgressState
			if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
				continue
			}
			select {
			case out <- state:
			default:
			}
		}
	}()
	return out, func() { _ = sub.Close() }
}

func (b *RedisBus) RequestCancel(ctx context.Context, key string) error {
	return b.client.Set(ctx, cancelKey(key), "1", Expiry).Err()
}

func (b *RedisBus) IsCancelled(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, cancelKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
