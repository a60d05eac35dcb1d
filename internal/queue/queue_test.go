package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/queue"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEnqueueDequeue(t *testing.T) {
	client := newTestRedis(t)

	enq := queue.Enqueuer{R: client, Prefix: "garage"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := enq.Enqueue(ctx, queue.Task{Kind: "reminder:dispatch", Payload: []byte("inv-1"), IdempotencyKey: "inv-1"})
	require.NoError(t, err)

	processed := make(chan []byte, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "garage",
		Kind:              "reminder:dispatch",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			processed <- task.Payload
			cancel()
			return nil
		},
	}

	go func() { _ = worker.Run(ctx) }()

	select {
	case payload := <-processed:
		require.Equal(t, []byte("inv-1"), payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for payload")
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	enq := queue.Enqueuer{R: client, Prefix: "garage"}
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "reminder:dispatch", Payload: []byte("a"), IdempotencyKey: "same"}))
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "reminder:dispatch", Payload: []byte("b"), IdempotencyKey: "same"}))

	depth, err := client.ZCard(ctx, "garage:queue:reminder:dispatch").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestWorkerRetries(t *testing.T) {
	client := newTestRedis(t)

	enq := queue.Enqueuer{R: client, Prefix: "garage"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "reminder:dispatch", Payload: []byte("retry"), IdempotencyKey: "r1", MaxAttempts: 3}))

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "garage",
		Kind:              "reminder:dispatch",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		Handler: func(ctx context.Context, task queue.Task) error {
			if attempts.Add(1) == 1 {
				return errors.New("fail first")
			}
			cancel()
			return nil
		},
	}

	go func() { _ = worker.Run(ctx) }()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not retry in time")
	}

	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestExhaustedTaskLandsInDLQ(t *testing.T) {
	client := newTestRedis(t)

	enq := queue.Enqueuer{R: client, Prefix: "garage"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "reminder:dispatch", Payload: []byte("doomed"), MaxAttempts: 1}))

	handled := make(chan struct{}, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "garage",
		Kind:              "reminder:dispatch",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			handled <- struct{}{}
			return errors.New("always fails")
		},
	}

	go func() { _ = worker.Run(ctx) }()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("task was never handled")
	}

	require.Eventually(t, func() bool {
		n, err := client.LLen(context.Background(), "garage:reminder:dispatch:dlq").Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}
