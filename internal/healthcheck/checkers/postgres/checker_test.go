package pgchecker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/useembed/useembed/internal/healthcheck"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckerListChecks(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), fakePinger{}).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusOK {
		t.Fatalf("expected one ok check, got %+v", items)
	}

	items = NewChecker(newTestLogger(), fakePinger{err: errors.New("connection refused")}).ListChecks(context.Background())
	if items[0].Status != healthcheck.StatusError || items[0].Detail != "connection refused" {
		t.Fatalf("expected error check, got %+v", items[0])
	}
}

func TestCheckerWithoutPool(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), nil).ListChecks(context.Background())
	if items[0].Status != healthcheck.StatusUnknown {
		t.Fatalf("expected unknown status, got %s", items[0].Status)
	}
}
