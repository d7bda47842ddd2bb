package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cohort-extractor/internal/models"

	"github.com/go-redis/redis/v8"
)

// RedisStream appends run summaries to a Redis stream.
// Entry fields: run_id, status, data (summary JSON), timestamp (unix seconds).
type RedisStream struct {
	client *redis.Client
	stream string
}

func NewRedisStream(client *redis.Client, stream string) *RedisStream {
	return &RedisStream{client: client, stream: stream}
}

func (n *RedisStream) Publish(ctx context.Context, summary *models.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"run_id":    summary.RunID,
			"status":    string(summary.Status),
			"data":      string(data),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", n.stream, err)
	}
	return nil
}
