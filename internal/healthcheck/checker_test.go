package healthcheck

import (
	"context"
	"testing"
)

type staticChecker []CheckResult

func (s staticChecker) ListChecks(ctx context.Context) []CheckResult { return s }

func TestRunReportsWorstStatus(t *testing.T) {
	t.Parallel()

	report := Run(context.Background(),
		staticChecker{{ID: "a", Status: StatusOK}},
		nil,
		staticChecker{{ID: "b", Status: StatusWarn}, {ID: "c", Status: StatusOK}},
	)
	if report.Status != StatusWarn {
		t.Fatalf("expected warn, got %s", report.Status)
	}
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}

	report = Run(context.Background(), staticChecker{{ID: "a", Status: StatusError}}, staticChecker{{ID: "b", Status: StatusWarn}})
	if report.Status != StatusError {
		t.Fatalf("expected error, got %s", report.Status)
	}
}

func TestRunWithoutCheckersIsOK(t *testing.T) {
	t.Parallel()

	report := Run(context.Background())
	if report.Status != StatusOK || len(report.Checks) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
