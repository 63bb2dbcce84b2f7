package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	t.Parallel()

	cause := stdErrors.New("dial tcp: refused")
	err := fmt.Errorf("outer: %w", Wrap(CodeStorageFailure, cause, "写入失败", WithMetadata("table", "market_jobs")))

	if CodeOf(err) != CodeStorageFailure {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("cause must stay reachable")
	}
	if !stdErrors.Is(err, New(CodeStorageFailure, "")) {
		t.Fatal("errors.Is should match by code")
	}
	if MetadataOf(err)["table"] != "market_jobs" {
		t.Fatalf("metadata lost: %v", MetadataOf(err))
	}
	if !RetryableError(err) || !ShouldAlert(err) || SeverityOf(err) != SeverityCritical {
		t.Fatal("registered attributes should apply")
	}
}

func TestOptionsOverrideRegistry(t *testing.T) {
	t.Parallel()

	err := New(CodeStorageFailure, "", WithRetryable(false), WithAlert(false), WithSeverity(SeverityInfo))
	if RetryableError(err) || ShouldAlert(err) || SeverityOf(err) != SeverityInfo {
		t.Fatalf("options must override registry defaults: %+v", err)
	}
	if err.Message() != "storage failure" {
		t.Fatalf("empty message should fall back to the registry, got %q", err.Message())
	}
}

func TestRegisterCustomCode(t *testing.T) {
	t.Parallel()

	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Retryable: true})
	err := New(code, "")
	if !RetryableError(err) || SeverityOf(err) != SeverityWarning || ShouldAlert(err) {
		t.Fatalf("custom attributes not applied: %v", err)
	}
}

func TestPlainErrorsAreUnknown(t *testing.T) {
	t.Parallel()

	err := stdErrors.New("boom")
	if CodeOf(err) != CodeUnknown || RetryableError(err) || MetadataOf(err) != nil {
		t.Fatal("plain errors must map to the unknown code")
	}
	if CodeOf(nil) != CodeUnknown {
		t.Fatal("nil maps to unknown")
	}
}

func TestNewfAndCodes(t *testing.T) {
	t.Parallel()

	err := Newf(CodeNotFound, "任务 %s 不存在", "job-1")
	if err.Message() != "任务 job-1 不存在" || err.Code() != CodeNotFound {
		t.Fatalf("unexpected error %v", err)
	}

	codes := Codes()
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("codes must be sorted: %v", codes)
		}
	}
	found := false
	for _, code := range codes {
		if code == CodeTimeout {
			found = true
		}
	}
	if !found {
		t.Fatal("builtin codes must be registered")
	}
}
