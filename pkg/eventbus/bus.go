package eventbus

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus wraps transport setup concerns (in-memory or redis) and exposes
// publisher/subscriber construction for session streams.
type Bus interface {
	Publisher() message.Publisher
	// BuildSubscriber returns a subscriber for the given session. The bool
	// reports whether the caller owns the subscriber and must close it.
	BuildSubscriber(ctx context.Context, sessionID string) (message.Subscriber, bool, error)
	Close() error
}

// Build constructs a Bus backed by Redis Streams when settings enable it,
// and an in-memory gochannel transport otherwise.
func Build(s Settings) (Bus, error) {
	if !s.Enabled {
		ps := gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			NewWatermillLogger(log.Logger),
		)
		return &inMemoryBus{ps: ps}, nil
	}

	s = s.withDefaults()
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build redis publisher")
	}
	return &redisBus{settings: s, pub: pub}, nil
}

type inMemoryBus struct {
	ps *gochannel.GoChannel
}

func (b *inMemoryBus) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.ps
}

func (b *inMemoryBus) BuildSubscriber(_ context.Context, sessionID string) (message.Subscriber, bool, error) {
	if b == nil || b.ps == nil {
		return nil, false, errors.New("bus is not initialized")
	}
	if sessionID == "" {
		return nil, false, errors.New("sessionID is empty")
	}
	return b.ps, false, nil
}

func (b *inMemoryBus) Close() error {
	if b == nil || b.ps == nil {
		return nil
	}
	return b.ps.Close()
}

type redisBus struct {
	settings Settings
	pub      message.Publisher
}

func (b *redisBus) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.pub
}

func (b *redisBus) BuildSubscriber(ctx context.Context, sessionID string) (message.Subscriber, bool, error) {
	if b == nil || b.pub == nil {
		return nil, false, errors.New("bus is not initialized")
	}
	if sessionID == "" {
		return nil, false, errors.New("sessionID is empty")
	}
	if ctx == nil {
		return nil, false, errors.New("ctx is nil")
	}
	_ = EnsureGroupAtTail(ctx, b.settings.Addr, TopicForSession(sessionID), b.settings.Group)
	sub, err := BuildGroupSubscriber(b.settings.Addr, b.settings.Group, b.settings.Consumer+":"+sessionID)
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

func (b *redisBus) Close() error {
	if b == nil || b.pub == nil {
		return nil
	}
	return b.pub.Close()
}

// TopicForSession computes the trigger topic for a session.
func TopicForSession(sessionID string) string { return "chat:" + sessionID }

// BuildGroupSubscriber returns a Redis Streams subscriber bound to the given
// consumer group/name.
func BuildGroupSubscriber(addr, group, consumer string) (message.Subscriber, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: group,
		Consumer:      consumer,
	}, NewWatermillLogger(log.Logger))
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($)
// if it doesn't exist. This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP means the group already exists.
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
