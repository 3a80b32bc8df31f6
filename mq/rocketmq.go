package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"
)

const DefaultTopic = "poll_notifications"

// RocketMQConfig addresses the name servers and names the producer group.
type RocketMQConfig struct {
	NameServers []string
	Group       string
	Topic       string
	Retries     int
	SendTimeout time.Duration
}

// sender is the part of rocketmq.Producer the dispatcher calls.
type sender interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
	Shutdown() error
}

// RocketMQDispatcher publishes notifications to a RocketMQ topic. Messages of
// one poll share a sharding key so consumers see them in order.
type RocketMQDispatcher struct {
	producer sender
	topic    string
	log      *zap.Logger
}

// NewRocketMQDispatcher creates and starts a producer.
func NewRocketMQDispatcher(cfg RocketMQConfig, log *zap.Logger) (*RocketMQDispatcher, error) {
	if len(cfg.NameServers) == 0 {
		return nil, fmt.Errorf("rocketmq: no name servers configured")
	}
	if cfg.Group == "" {
		cfg.Group = "poll_notification_producer"
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	p, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServers),
		producer.WithGroupName(cfg.Group),
		producer.WithRetry(cfg.Retries),
		producer.WithSendMsgTimeout(cfg.SendTimeout),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("rocketmq: create producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("rocketmq: start producer: %w", err)
	}
	log.Info("rocketmq producer started", zap.Strings("name_servers", cfg.NameServers), zap.String("group", cfg.Group))
	return newRocketMQDispatcher(p, cfg.Topic, log), nil
}

func newRocketMQDispatcher(p sender, topic string, log *zap.Logger) *RocketMQDispatcher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &RocketMQDispatcher{producer: p, topic: topic, log: log}
}

func (d *RocketMQDispatcher) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := primitive.NewMessage(d.topic, body)
	msg.WithTag(n.Kind)
	msg.WithKeys([]string{n.IdempotencyKey, n.ID})
	msg.WithShardingKey(strconv.FormatUint(uint64(n.PollID), 10))

	res, err := d.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("rocketmq: send %s: %w", n.Kind, err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("rocketmq: send %s: status %d", n.Kind, res.Status)
	}
	d.log.Info("notification published",
		zap.String("topic", d.topic),
		zap.String("msg_id", res.MsgID),
		zap.String("kind", n.Kind),
		zap.Uint("poll_id", n.PollID),
	)
	return nil
}

func (d *RocketMQDispatcher) Close() error {
	return d.producer.Shutdown()
}
