package livestats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// Channel is the pub/sub channel carrying an org's stats updates.
func Channel(orgID string) string {
	return fmt.Sprintf("pipeline:stats:%s", orgID)
}

// Publisher pushes partial snapshots to an org's channel.
type Publisher struct {
	redis  *redis.Client
	logger *logging.Logger
}

func NewPublisher(client *redis.Client, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{redis: client, logger: logger.Component("stats_publisher")}
}

// Publish sends msg to every subscriber of orgID. Empty messages are
// skipped.
func (p *Publisher) Publish(ctx context.Context, orgID string, msg StatsMessage) error {
	if p == nil || p.redis == nil {
		return nil
	}
	if msg.PartialCounters.Empty() && (msg.Previous == nil || msg.Previous.Empty()) {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("livestats: marshal: %w", err)
	}
	if err := p.redis.Publish(ctx, Channel(orgID), payload).Err(); err != nil {
		p.logger.Warn("stats publish failed", "org_id", orgID, "error", err)
		return fmt.Errorf("livestats: publish: %w", err)
	}
	return nil
}

// RedisFeed consumes an org's channel straight into a Merger. A confirmed
// subscription counts as connect; a closed channel as disconnect.
type RedisFeed struct {
	redis  *redis.Client
	orgID  string
	merger *Merger
	logger *logging.Logger
}

func NewRedisFeed(client *redis.Client, orgID string, merger *Merger, logger *logging.Logger) *RedisFeed {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisFeed{redis: client, orgID: orgID, merger: merger, logger: logger.Component("stats_feed")}
}

// Run blocks until ctx is done or the subscription ends. It does not
// reconnect.
func (f *RedisFeed) Run(ctx context.Context) error {
	sub := f.redis.Subscribe(ctx, Channel(f.orgID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("livestats: subscribe: %w", err)
	}
	f.merger.HandleConnect()
	defer f.merger.HandleDisconnect()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("livestats: subscription closed")
			}
			stats, err := DecodeStats([]byte(msg.Payload))
			if err != nil {
				f.merger.metrics.ObserveLiveMessage("invalid")
				f.logger.Warn("dropping malformed stats payload", "org_id", f.orgID, "error", err)
				continue
			}
			f.merger.Apply(stats)
		}
	}
}
