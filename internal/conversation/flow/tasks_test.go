package flow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTaskRunnerDetachesFromCaller(t *testing.T) {
	runner := NewTaskRunner(nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	err := runner.Go(ctx, "probe", func(taskCtx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		result <- taskCtx.Err()
		return nil
	})
	if err != nil {
		t.Fatalf("go: %v", err)
	}
	cancel()
	if err := runner.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := <-result; err != nil {
		t.Fatalf("task context must survive caller cancellation, got %v", err)
	}
}

func TestTaskRunnerTimeout(t *testing.T) {
	runner := NewTaskRunner(nil, 20*time.Millisecond)
	result := make(chan error, 1)
	_ = runner.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})
	if err := <-result; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	_ = runner.Drain(context.Background())
}

func TestTaskRunnerRefusesAfterDrain(t *testing.T) {
	runner := NewTaskRunner(nil, time.Second)
	if err := runner.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := runner.Go(context.Background(), "late", func(context.Context) error { return nil }); !errors.Is(err, ErrRunnerClosed) {
		t.Fatalf("expected runner closed, got %v", err)
	}
}

func TestTaskRunnerDrainHonorsDeadline(t *testing.T) {
	runner := NewTaskRunner(nil, time.Second)
	release := make(chan struct{})
	_ = runner.Go(context.Background(), "blocked", func(context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := runner.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	close(release)
	if err := runner.Drain(context.Background()); err != nil {
		t.Fatalf("second drain: %v", err)
	}
}
