package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/pdf-transcriber/config"
)

const TaskTypeTranscribe = "document:transcribe"

var queues = []string{"critical", "default", "low"}

// ErrTaskNotFound is returned when neither Redis nor any queue knows the task.
var ErrTaskNotFound = errors.New("task not found")

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	// SaveStatus records progress and terminal states.
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   TranscribePayload `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TranscribePayload points the worker at a stored upload.
type TranscribePayload struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message,omitempty"`
	PageIndex  int       `json:"pageIndex,omitempty"`
	TotalPages int       `json:"totalPages,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// AsynqQueue enqueues through asynq and keeps task status in Redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *QueueConfig
}

// GetQueue builds a queue from the environment.
func GetQueue() (*AsynqQueue, error) {
	rc := config.GetRedisConfig()
	return NewAsynqQueue(&QueueConfig{
		RedisAddr:      rc.Addr,
		RedisPassword:  rc.Password,
		RedisDB:        rc.DB,
		MaxRetries:     3,
		ProcessTimeout: 30 * time.Minute,
		StatusTTL:      24 * time.Hour,
	})
}

func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       cfg,
	}, nil
}

// Ping checks the Redis connection.
func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(queueFor(task.Priority)),
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

func queueFor(priority int) string {
	switch priority {
	case 1:
		return "critical"
	case 2:
		return "default"
	default:
		return "low"
	}
}

// GetTaskStatus prefers the status saved by the worker and falls back to
// the asynq inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	switch {
	case err == nil:
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	for _, name := range queues {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask deletes a queued task, or signals a running one to stop.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, name := range queues {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			lastErr = err
			continue
		}
		if info.State == asynq.TaskStateActive {
			err = q.inspector.CancelProcessing(taskID)
		} else {
			err = q.inspector.DeleteTask(name, taskID)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		return q.SaveStatus(ctx, &TaskStatus{TaskID: taskID, Status: "cancelled", FinishedAt: time.Now()})
	}
	return fmt.Errorf("%w: %s: %w", ErrTaskNotFound, taskID, lastErr)
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func statusKey(taskID string) string {
	return "task_status:" + taskID
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = "pending"
	case asynq.TaskStateActive:
		status.Status = "running"
	case asynq.TaskStateCompleted:
		status.Status = "completed"
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry:
		status.Status = "pending"
		status.Error = info.LastErr
	case asynq.TaskStateArchived:
		status.Status = "failed"
		status.Error = info.LastErr
	}
	return status
}
