package errdefs

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code and message",
			err:  NewInputError(CodeInvalidInput, "bad volume"),
			want: "[InvalidInput] bad volume",
		},
		{
			name: "with position",
			err:  NewLayoutError(CodeUnknownParent, "no parent").WithPosition("B3"),
			want: "[UnknownParent] no parent (position=B3)",
		},
		{
			name: "with rack",
			err:  NewInputError(CodeRackNotFound, "missing").WithRack("09999999"),
			want: "[RackNotFound] missing (rack=09999999)",
		},
		{
			name: "with rack and position and cause",
			err: NewTransferViolation(CodeTargetOverflow, "too full").
				WithRack("02480001").WithPosition("A1").WithCause(fmt.Errorf("max 35")),
			want: "[TargetOverflow] too full (rack=02480001, position=A1): max 35",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := NewTransferViolation(CodeSourceUnderflow, "empty").WithPosition("C4")
	wrapped := fmt.Errorf("job 2: %w", err)

	if !errors.Is(wrapped, ErrSourceUnderflow) {
		t.Error("Expected wrapped error to match ErrSourceUnderflow")
	}
	if errors.Is(wrapped, ErrTargetOverflow) {
		t.Error("Expected wrapped error not to match ErrTargetOverflow")
	}
	if !IsTransferViolation(wrapped) {
		t.Error("Expected a transfer violation")
	}
	if CodeOf(wrapped) != CodeSourceUnderflow {
		t.Errorf("Expected code %s, got %s", CodeSourceUnderflow, CodeOf(wrapped))
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Error("Expected empty class for a plain error")
	}
}

func TestCommitError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewCommitError("failed to persist worklist", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected commit error to wrap its cause")
	}
	if !errors.Is(err, ErrCommitFailed) {
		t.Error("Expected commit error to match ErrCommitFailed")
	}
}

func TestList(t *testing.T) {
	var l List
	if l.Err() != nil {
		t.Fatal("Expected nil error for an empty list")
	}

	l.Add(NewLayoutError(CodeUnknownPool, "no stock concentration").WithPosition("A1"))
	l.Add(NewTransferViolation(CodeTargetOverflow, "too full").WithPosition("B1"))
	l.Add(NewLayoutError(CodeUnknownPool, "no stock concentration").WithPosition("C1"))

	err := l.Err()
	if err == nil {
		t.Fatal("Expected an error for a non-empty list")
	}
	if l.Len() != 3 {
		t.Errorf("Expected 3 errors, got %d", l.Len())
	}
	if !errors.Is(err, ErrTargetOverflow) {
		t.Error("Expected list to match a member sentinel")
	}

	want := []string{CodeTargetOverflow, CodeUnknownPool}
	if got := l.Codes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected codes %v, got %v", want, got)
	}
}

func TestAsList(t *testing.T) {
	if AsList(nil) != nil {
		t.Error("Expected nil list for nil error")
	}

	single := NewInputError(CodeInvalidInput, "bad")
	if got := AsList(fmt.Errorf("wrap: %w", single)); len(got) != 1 || got[0] != single {
		t.Errorf("Expected the single error, got %v", got)
	}

	var l List
	l.Add(NewInputError(CodeInvalidInput, "first"))
	l.Add(NewInputError(CodeInvalidInput, "second"))
	if got := AsList(l.Err()); len(got) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(got))
	}

	plain := AsList(errors.New("boom"))
	if len(plain) != 1 || plain[0].Class != ClassCommit {
		t.Errorf("Expected a commit error for an unclassified error, got %v", plain)
	}
}

func TestWarning_String(t *testing.T) {
	w := Warning{Code: WarnDilutionSplit, Message: "split in 2", Position: "D7"}
	if got := w.String(); got != "[DilutionWillBeSplit] split in 2 (position=D7)" {
		t.Errorf("unexpected warning string %q", got)
	}
}
