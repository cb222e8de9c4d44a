package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisc "github.com/inkwell-cms/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

var ErrTaskNotFound = errors.New("task not found")

// Task is a record of a background dispatch stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	keyPrefix   = "inkwell:task:"
	keyIndex    = "inkwell:tasks:index"  // sorted set: score=created_at, member=task_id
	keyDedupSet = "inkwell:tasks:dedup:" // hash per type: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour
)

// Service manages the Redis-backed task records.
type Service struct {
	rc *redisc.Client
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue records a new pending task. When dedupKey is set and a non-terminal
// task with the same key exists, that task is returned with created=false.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*Task, bool, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		DedupKey:  dedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, err
	}

	id, err := enqueueScript.Run(ctx, s.rc.Raw(),
		[]string{keyDedupSet + taskType, s.taskKey(task.ID), keyIndex},
		dedupKey, task.ID, data, int64(taskTTL/time.Second), task.CreatedAt.UnixMilli(), keyPrefix,
	).Text()
	if err != nil {
		return nil, false, err
	}
	if id == task.ID {
		return task, true, nil
	}
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("load claimed task %s: %w", id, err)
	}
	return existing, false, nil
}

// enqueueScript writes the task record, its index entry and the dedup claim
// in one step. A claim is reused while its record exists and is not terminal;
// the script then returns the existing task ID instead of the new one.
var enqueueScript = redis.NewScript(`
local dedup, id, ttl = ARGV[1], ARGV[2], tonumber(ARGV[4])
if dedup ~= '' then
	local existing = redis.call('HGET', KEYS[1], dedup)
	if existing then
		local raw = redis.call('GET', ARGV[6] .. existing)
		if raw then
			local status = cjson.decode(raw)['status']
			if status ~= 'completed' and status ~= 'failed' then
				return existing
			end
		end
	end
	redis.call('HSET', KEYS[1], dedup, id)
	redis.call('EXPIRE', KEYS[1], ttl)
end
redis.call('SET', KEYS[2], ARGV[3], 'EX', ttl)
redis.call('ZADD', KEYS[3], ARGV[5], id)
return id
`)

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, ErrTaskNotFound
	}
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateStatus sets a task's status and optional result/error. Terminal
// states release the dedup key.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = status
	task.UpdatedAt = time.Now()
	task.Error = errMsg

	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, taskTTL)
	if status.Terminal() && task.DedupKey != "" {
		pipe.HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// List returns tasks matching optional filters, ordered by creation time descending.
func (s *Service) List(ctx context.Context, page, size int, taskType string, status TaskStatus) ([]*Task, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if taskType != "" && task.Type != taskType {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task)
	}

	total := int64(len(tasks))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	// Compare in pages first so huge page values cannot overflow the offset.
	if page-1 >= (len(tasks)+size-1)/size {
		return []*Task{}, total, nil
	}
	start := (page - 1) * size
	end := start + size
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total, nil
}

// DeleteCompleted removes terminal tasks created before the cutoff and prunes
// index entries whose records already expired. It returns the number removed.
func (s *Service) DeleteCompleted(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if err != nil || !task.Status.Terminal() || !task.CreatedAt.Before(before) {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return removed, nil
}
