package livestats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisFeed_AppliesPublishedStats(t *testing.T) {
	_, client := setupTestRedis(t)
	merger := NewMerger(logging.Discard())
	feed := NewRedisFeed(client, "org-1", merger, logging.Discard())
	pub := NewPublisher(client, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	require.Eventually(t, merger.Connected, time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Publish(context.Background(), "org-2", StatsMessage{PartialCounters: PartialCounters{TotalLeads: Int64(7)}}))
	require.NoError(t, client.Publish(context.Background(), Channel("org-1"), "not json").Err())
	require.NoError(t, pub.Publish(context.Background(), "org-1", StatsMessage{PartialCounters: PartialCounters{TotalLeads: Int64(120)}}))

	require.Eventually(t, func() bool {
		live := merger.Live()
		return live.TotalLeads != nil && *live.TotalLeads == 120
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("feed did not stop")
	}
	assert.False(t, merger.Connected())
	assert.EqualValues(t, 120, *merger.Live().TotalLeads)
}

func TestPublisher_SkipsEmptyMessages(t *testing.T) {
	mr, client := setupTestRedis(t)
	pub := NewPublisher(client, nil)

	require.NoError(t, pub.Publish(context.Background(), "org-1", StatsMessage{}))
	var nilPub *Publisher
	require.NoError(t, nilPub.Publish(context.Background(), "org-1", StatsMessage{PartialCounters: PartialCounters{TotalLeads: Int64(1)}}))

	mr.Close()
	err := pub.Publish(context.Background(), "org-1", StatsMessage{PartialCounters: PartialCounters{TotalLeads: Int64(1)}})
	assert.Error(t, err)
}
