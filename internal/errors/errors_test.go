package errors

import (
	"fmt"
	"testing"
)

func TestEWithString(t *testing.T) {
	err := E(Op("rdb.GetJob"), NotFound, "job not found")
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Op != "rdb.GetJob" {
		t.Errorf("expected op rdb.GetJob, got %s", e.Op)
	}
	if e.Code != NotFound {
		t.Errorf("expected code NotFound, got %s", e.Code)
	}
	if err.Error() != "rdb.GetJob: job not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestEWithFormat(t *testing.T) {
	err := E(Op("rdb.AddJob"), Internal, "redis error: %v", fmt.Errorf("connection refused"))
	if err.Error() != "rdb.AddJob: redis error: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestEWithWrappedError(t *testing.T) {
	cause := ErrLockNotHeld
	err := E(Op("lock.TakeLock"), FailedPrecondition, cause)
	if !Is(err, ErrLockNotHeld) {
		t.Errorf("expected wrapped error to satisfy errors.Is")
	}
}

func TestEWithNoArgs(t *testing.T) {
	err := E(Op("x"), Unknown)
	if err.Error() != "x: unknown" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	err := E(Op("rdb.GetJob"), NotFound, "missing")
	if CodeOf(err) != NotFound {
		t.Errorf("expected NotFound, got %s", CodeOf(err))
	}
	if CodeOf(fmt.Errorf("plain error")) != Unknown {
		t.Errorf("expected Unknown for a non-E error")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		Unknown:            "unknown",
		NotFound:           "not_found",
		AlreadyExists:      "already_exists",
		FailedPrecondition: "failed_precondition",
		Internal:           "internal",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := New("root cause")
	err := E(Op("op"), Internal, cause)
	e := err.(*Error)
	if e.Unwrap() != cause {
		t.Errorf("expected Unwrap to return the wrapped cause")
	}
}
