// Package pubsub builds the watermill publisher/subscriber pair the hub talks to.
package pubsub

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/config"
)

// InstanceID identifies this hub process on the bus.
type InstanceID string

func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString()[:8])
}

// Provider owns the transport of the event bus.
//
// [DRIVERS]
//   - gochannel: in-process, the default for a single instance.
//   - amqp: one fanout exchange per topic, one non-durable auto-delete queue per
//     instance, so every hub process receives every event.
type Provider struct {
	driver     string
	publisher  message.Publisher
	subscriber message.Subscriber
}

func NewProvider(cfg *config.Config, id InstanceID, logger watermill.LoggerAdapter) (*Provider, error) {
	switch cfg.PubSub.Driver {
	case config.DriverAMQP:
		amqpCfg := amqp.NewNonDurablePubSubConfig(
			cfg.PubSub.AMQPURL,
			amqp.GenerateQueueNameTopicNameWithSuffix(string(id)),
		)
		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
		}
		return &Provider{driver: config.DriverAMQP, publisher: pub, subscriber: sub}, nil

	case config.DriverGoChannel, "":
		return NewGoChannelProvider(logger), nil

	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.PubSub.Driver)
	}
}

// NewGoChannelProvider returns an in-process bus. Events published on a topic
// nobody subscribes to are discarded.
func NewGoChannelProvider(logger watermill.LoggerAdapter) *Provider {
	gc := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return &Provider{driver: config.DriverGoChannel, publisher: gc, subscriber: gc}
}

func (p *Provider) Driver() string                 { return p.driver }
func (p *Provider) Publisher() message.Publisher   { return p.publisher }
func (p *Provider) Subscriber() message.Subscriber { return p.subscriber }

func (p *Provider) Close() error {
	if p.driver == config.DriverGoChannel {
		return p.publisher.Close()
	}
	return errors.Join(p.subscriber.Close(), p.publisher.Close())
}
