package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty     = errors.New("task queue is empty")
	ErrInvalidMessage = errors.New("invalid task message")
)

// Message asks the service to analyze one file already present on the worker's filesystem.
type Message struct {
	SID         string    `json:"sid" validate:"required"`
	FilePath    string    `json:"file_path" validate:"required"`
	FileName    string    `json:"file_name" validate:"required"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Queue is the redis list of pending submissions.
type Queue struct {
	rdb      redis.Cmdable
	keys     Keys
	validate *validator.Validate
}

// NewQueue uses the tasks list under prefix.
func NewQueue(rdb redis.Cmdable, prefix string) *Queue {
	return &Queue{
		rdb:      rdb,
		keys:     Keys{Prefix: prefix},
		validate: validator.New(),
	}
}

// Push validates msg and appends it to the queue.
func (q *Queue) Push(ctx context.Context, msg Message) error {
	if err := q.validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.keys.Tasks(), data).Err()
}

// Pop blocks up to timeout for the next message. ErrQueueEmpty is returned on timeout.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.keys.Tasks()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("popping task: %w", err)
	}
	// BLPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("popping task: unexpected reply %v", res)
	}
	return q.decode([]byte(res[1]))
}

// Len returns the number of pending submissions.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.keys.Tasks()).Result()
}

func (q *Queue) decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := q.validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return &msg, nil
}
