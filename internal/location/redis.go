package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/geo"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Redis receives positions published on a pub/sub channel by the device side.
//
// Messages are JSON, either {"lat": 60.45, "lon": 22.26}
// or {"failure": "not_authorized"}.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedis creates a pub/sub backed source
func NewRedis(client *redis.Client, channel string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

// Subscribe implements Source
func (r *Redis) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)

		pubsub := r.client.Subscribe(ctx, r.channel)
		defer pubsub.Close()

		r.logger.Info("subscribed to location channel", zap.String("channel", r.channel))

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				ev, err := ParseMessage([]byte(msg.Payload))
				if err != nil {
					r.logger.Warn("dropping location message", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Terminal() {
					return
				}
			}
		}
	}()

	return out
}

// Publish sends a coordinate on the channel
func (r *Redis) Publish(ctx context.Context, c geo.Coordinate) error {
	data, err := json.Marshal(message{Lat: &c.Latitude, Lon: &c.Longitude})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// PublishFailure ends the stream for every subscriber
func (r *Redis) PublishFailure(ctx context.Context, f Failure) error {
	data, err := json.Marshal(message{Failure: string(f)})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

type message struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Failure string   `json:"failure,omitempty"`
}

// ParseMessage decodes one pub/sub payload into an event
func ParseMessage(payload []byte) (Event, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Event{}, fmt.Errorf("decode location message: %w", err)
	}

	if m.Failure != "" {
		f, err := ParseFailure(m.Failure)
		if err != nil {
			return Event{}, err
		}
		return Event{Failure: f}, nil
	}

	if m.Lat == nil || m.Lon == nil {
		return Event{}, errors.New("location message needs lat and lon")
	}
	c := geo.Coordinate{Latitude: *m.Lat, Longitude: *m.Lon}
	if !c.Valid() {
		return Event{}, fmt.Errorf("coordinate out of range %v", c)
	}
	return Event{Coordinate: &c}, nil
}
