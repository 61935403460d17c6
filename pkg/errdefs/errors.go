// Package errdefs defines the classified errors shared by the planner and the
// executor. Every error carries a Class used to decide whether it is collected
// (transfer violations) or returned on first occurrence (everything else).
package errdefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Class represents the classification of an error.
type Class string

const (
	// ClassInputValidation indicates wrong value types, missing inputs or
	// out-of-range arguments. Raised before any processing.
	ClassInputValidation Class = "input_validation"

	// ClassLayoutStructure indicates an inconsistent preparation layout.
	ClassLayoutStructure Class = "layout_structure"

	// ClassGeometry indicates a rack sector or translation problem.
	ClassGeometry Class = "geometry"

	// ClassAssociation indicates sectors that cannot be associated.
	ClassAssociation Class = "association"

	// ClassTransferViolation indicates a physical limit that would be broken
	// by a planned transfer.
	ClassTransferViolation Class = "transfer_violation"

	// ClassCommit indicates a failure after a successful build phase. This is
	// always a bug.
	ClassCommit Class = "commit"
)

// Error codes.
const (
	CodeInvalidInput              = "InvalidInput"
	CodeInvalidSectorCount        = "InvalidSectorCount"
	CodePositionOutOfSector       = "PositionOutOfSector"
	CodePositionOutOfShape        = "PositionOutOfShape"
	CodeShapeSectorMismatch       = "ShapeSectorMismatch"
	CodeDuplicateHash             = "DuplicateHash"
	CodeMockMismatch              = "MockMismatch"
	CodeUnknownPool               = "UnknownPool"
	CodeUnknownParent             = "UnknownParent"
	CodeUnresolvedFloating        = "UnresolvedFloating"
	CodeNonUniformSector          = "NonUniformSector"
	CodeInconsistentAssociation   = "InconsistentAssociation"
	CodeTransferVolumeOutOfRange  = "TransferVolumeOutOfRange"
	CodeTargetOverflow            = "TargetOverflow"
	CodeSourceUnderflow           = "SourceUnderflow"
	CodeContainerMissing          = "ContainerMissing"
	CodeTransferVariantMismatch   = "TransferVariantMismatch"
	CodeBufferVolumeTooSmall      = "BufferVolumeTooSmall"
	CodeInconsistentAliquotBuffer = "InconsistentAliquotBuffer"
	CodeDuplicateJobIndex         = "DuplicateJobIndex"
	CodeRackNotFound              = "RackNotFound"
	CodeRunNotFound               = "RunNotFound"
	CodePolicyDenied              = "PolicyDenied"
	CodeCommitFailed              = "CommitFailed"
)

// Sentinels for errors.Is. Matching is done on class and code only.
var (
	ErrPositionOutOfSector       = &Error{Class: ClassGeometry, Code: CodePositionOutOfSector}
	ErrShapeSectorMismatch       = &Error{Class: ClassGeometry, Code: CodeShapeSectorMismatch}
	ErrInvalidSectorCount        = &Error{Class: ClassGeometry, Code: CodeInvalidSectorCount}
	ErrNonUniformSector          = &Error{Class: ClassAssociation, Code: CodeNonUniformSector}
	ErrInconsistentAssociation   = &Error{Class: ClassAssociation, Code: CodeInconsistentAssociation}
	ErrTransferVolumeOutOfRange  = &Error{Class: ClassTransferViolation, Code: CodeTransferVolumeOutOfRange}
	ErrTargetOverflow            = &Error{Class: ClassTransferViolation, Code: CodeTargetOverflow}
	ErrSourceUnderflow           = &Error{Class: ClassTransferViolation, Code: CodeSourceUnderflow}
	ErrContainerMissing          = &Error{Class: ClassTransferViolation, Code: CodeContainerMissing}
	ErrTransferVariantMismatch   = &Error{Class: ClassTransferViolation, Code: CodeTransferVariantMismatch}
	ErrBufferVolumeTooSmall      = &Error{Class: ClassTransferViolation, Code: CodeBufferVolumeTooSmall}
	ErrInconsistentAliquotBuffer = &Error{Class: ClassTransferViolation, Code: CodeInconsistentAliquotBuffer}
	ErrDuplicateHash             = &Error{Class: ClassLayoutStructure, Code: CodeDuplicateHash}
	ErrMockMismatch              = &Error{Class: ClassLayoutStructure, Code: CodeMockMismatch}
	ErrUnknownPool               = &Error{Class: ClassLayoutStructure, Code: CodeUnknownPool}
	ErrUnknownParent             = &Error{Class: ClassLayoutStructure, Code: CodeUnknownParent}
	ErrUnresolvedFloating        = &Error{Class: ClassInputValidation, Code: CodeUnresolvedFloating}
	ErrDuplicateJobIndex         = &Error{Class: ClassInputValidation, Code: CodeDuplicateJobIndex}
	ErrRackNotFound              = &Error{Class: ClassInputValidation, Code: CodeRackNotFound}
	ErrRunNotFound               = &Error{Class: ClassInputValidation, Code: CodeRunNotFound}
	ErrPolicyDenied              = &Error{Class: ClassInputValidation, Code: CodePolicyDenied}
	ErrInvalidInput              = &Error{Class: ClassInputValidation, Code: CodeInvalidInput}
	ErrCommitFailed              = &Error{Class: ClassCommit, Code: CodeCommitFailed}
)

// Error represents a classified error with context.
type Error struct {
	// Class is the error classification.
	Class Class `json:"class"`

	// Code identifies the error for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Position is the rack position label the error refers to, if any.
	Position string `json:"position,omitempty"`

	// Rack is the rack barcode the error refers to, if any.
	Rack string `json:"rack,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if e.Rack != "" && e.Position != "" {
		fmt.Fprintf(&sb, " (rack=%s, position=%s)", e.Rack, e.Position)
	} else if e.Rack != "" {
		fmt.Fprintf(&sb, " (rack=%s)", e.Rack)
	} else if e.Position != "" {
		fmt.Fprintf(&sb, " (position=%s)", e.Position)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class Class, code, message string, err error) *Error {
	return &Error{Class: class, Code: code, Message: message, Err: err}
}

// NewInputError creates an input validation error.
func NewInputError(code, message string) *Error {
	return newError(ClassInputValidation, code, message, nil)
}

// NewLayoutError creates a layout structure error.
func NewLayoutError(code, message string) *Error {
	return newError(ClassLayoutStructure, code, message, nil)
}

// NewGeometryError creates a geometry error.
func NewGeometryError(code, message string) *Error {
	return newError(ClassGeometry, code, message, nil)
}

// NewAssociationError creates an association error.
func NewAssociationError(code, message string) *Error {
	return newError(ClassAssociation, code, message, nil)
}

// NewTransferViolation creates a transfer violation.
func NewTransferViolation(code, message string) *Error {
	return newError(ClassTransferViolation, code, message, nil)
}

// NewCommitError creates a commit error wrapping err.
func NewCommitError(message string, err error) *Error {
	return newError(ClassCommit, CodeCommitFailed, message, err)
}

// WithPosition adds a rack position label to an error.
func (e *Error) WithPosition(label string) *Error {
	e.Position = label
	return e
}

// WithRack adds a rack barcode to an error.
func (e *Error) WithRack(barcode string) *Error {
	e.Rack = barcode
	return e
}

// WithCode replaces the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of err, or "" when err is not an *Error.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransferViolation reports whether err is a collectable transfer violation.
func IsTransferViolation(err error) bool {
	return ClassOf(err) == ClassTransferViolation
}

// List is an ordered collection of errors reported together.
type List []*Error

// Add appends e to the list.
func (l *List) Add(e *Error) {
	*l = append(*l, e)
}

// Len returns the number of collected errors.
func (l List) Len() int {
	return len(l)
}

// Err returns nil for an empty list and the list itself otherwise.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Error implements the error interface.
func (l List) Error() string {
	if len(l) == 1 {
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(l), strings.Join(msgs, "; "))
}

// Unwrap exposes the members to errors.Is and errors.As.
func (l List) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// Codes returns the distinct codes in the list, sorted.
func (l List) Codes() []string {
	seen := make(map[string]bool)
	codes := make([]string, 0)
	for _, e := range l {
		if !seen[e.Code] {
			seen[e.Code] = true
			codes = append(codes, e.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

// AsList flattens err into a List. Non-classified errors are wrapped as
// commit errors.
func AsList(err error) List {
	if err == nil {
		return nil
	}
	var l List
	if errors.As(err, &l) {
		return l
	}
	var e *Error
	if errors.As(err, &e) {
		return List{e}
	}
	return List{NewCommitError("unclassified error", err)}
}

// Warning is a non-blocking diagnostic attached to a result.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Position string `json:"position,omitempty"`
	Rack     string `json:"rack,omitempty"`
}

// Warning codes.
const (
	WarnDilutionSplit          = "DilutionWillBeSplit"
	WarnReservoirCapacity      = "ReservoirCapacityExceeded"
	WarnDilutionFactorExceeded = "DilutionFactorExceeded"
)

// String renders the warning for logs.
func (w Warning) String() string {
	if w.Position != "" {
		return fmt.Sprintf("[%s] %s (position=%s)", w.Code, w.Message, w.Position)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}
