package taskqueue

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisc "github.com/inkwell-cms/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newsletter = "post_newsletter"

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewService(redisc.New(rdb)), mr
}

func TestEnqueueConcurrentDedupCreatesOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, ok, err := svc.Enqueue(ctx, newsletter, map[string]string{"postId": "p1"}, "post:p1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[task.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	tasks, total, err := svc.List(ctx, 1, 10, newsletter, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, TaskPending, tasks[0].Status)
}

func TestEnqueueReusesRunningTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.Enqueue(ctx, newsletter, nil, "post:p1")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, svc.UpdateStatus(ctx, first.ID, TaskRunning, nil, ""))

	again, created, err := svc.Enqueue(ctx, newsletter, nil, "post:p1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, TaskRunning, again.Status)
}

func TestEnqueueAfterTerminalStatusCreatesNewTask(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Enqueue(ctx, newsletter, nil, "post:p1")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, first.ID, TaskCompleted, map[string]int{"sent": 3}, ""))
	assert.Empty(t, mr.HGet(keyDedupSet+newsletter, "post:p1"))

	second, created, err := svc.Enqueue(ctx, newsletter, nil, "post:p1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	done, err := svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, done.Status)
	assert.JSONEq(t, `{"sent":3}`, string(done.Result))
}

func TestEnqueueReplacesClaimWithoutRecord(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	mr.HSet(keyDedupSet+newsletter, "post:p1", "expired-task")

	task, created, err := svc.Enqueue(ctx, newsletter, nil, "post:p1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, task.ID, mr.HGet(keyDedupSet+newsletter, "post:p1"))
}

func TestEnqueueWithoutDedupKeyAlwaysCreates(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	a, createdA, err := svc.Enqueue(ctx, newsletter, nil, "")
	require.NoError(t, err)
	b, createdB, err := svc.Enqueue(ctx, newsletter, nil, "")
	require.NoError(t, err)
	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, mr.Exists(keyDedupSet+newsletter))
	assert.Greater(t, mr.TTL(keyPrefix+a.ID), time.Duration(0))
}

func TestListFiltersAndClampsPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.Enqueue(ctx, newsletter, nil, "")
		require.NoError(t, err)
	}
	other, _, err := svc.Enqueue(ctx, "backup", nil, "")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, other.ID, TaskFailed, nil, "disk full"))

	tasks, total, err := svc.List(ctx, 2, 2, newsletter, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, tasks, 1)

	tasks, total, err = svc.List(ctx, 1, 10, "", TaskFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "disk full", tasks[0].Error)

	tasks, total, err = svc.List(ctx, math.MaxInt, 100, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Empty(t, tasks)

	tasks, _, err = svc.List(ctx, 0, 10, "", "")
	require.NoError(t, err)
	assert.Len(t, tasks, 4)
}

func TestDeleteCompletedPrunesIndex(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	done, _, err := svc.Enqueue(ctx, newsletter, nil, "")
	require.NoError(t, err)
	pending, _, err := svc.Enqueue(ctx, newsletter, nil, "")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, done.ID, TaskCompleted, nil, ""))
	_, err = mr.ZAdd(keyIndex, 1, "expired-task")
	require.NoError(t, err)

	removed, err := svc.DeleteCompleted(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.GetByID(ctx, done.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = svc.GetByID(ctx, pending.ID)
	assert.NoError(t, err)
	members, err := mr.ZMembers(keyIndex)
	require.NoError(t, err)
	assert.Equal(t, []string{pending.ID}, members)
}
