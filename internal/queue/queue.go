package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueRenderReel = "queue:render_reel"

	cancelKeyPrefix = "reel:cancel:"
	cancelTTL       = 24 * time.Hour
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	ReelID    uuid.UUID `json:"reel_id"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout. A nil job with nil error means the queue
// was empty.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}
	return decodeJob(result[1])
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ReelID == uuid.Nil {
		return nil, fmt.Errorf("job %s has no reel id", job.ID)
	}
	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueRenderReel enqueues a full render of one reel.
func (q *Queue) EnqueueRenderReel(ctx context.Context, reelID uuid.UUID) error {
	return q.Enqueue(ctx, QueueRenderReel, &Job{
		ID:     uuid.New(),
		Type:   "render_reel",
		ReelID: reelID,
	})
}

func cancelKey(reelID uuid.UUID) string {
	return cancelKeyPrefix + reelID.String()
}

// RequestCancel sets the cancel flag a running worker polls.
func (q *Queue) RequestCancel(ctx context.Context, reelID uuid.UUID) error {
	return q.client.Set(ctx, cancelKey(reelID), "1", cancelTTL).Err()
}

// ClearCancel removes the flag once the reel has reached a terminal state.
func (q *Queue) ClearCancel(ctx context.Context, reelID uuid.UUID) error {
	return q.client.Del(ctx, cancelKey(reelID)).Err()
}

// IsCancelled treats redis errors as "not cancelled"; the database flag is
// checked alongside.
func (q *Queue) IsCancelled(ctx context.Context, reelID uuid.UUID) bool {
	n, err := q.client.Exists(ctx, cancelKey(reelID)).Result()
	if err != nil {
		log.Printf("[Queue] Cancel check failed for reel %s: %v", reelID, err)
		return false
	}
	return n > 0
}
