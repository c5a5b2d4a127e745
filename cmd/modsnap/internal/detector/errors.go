package detector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

var (
	// ErrStructuralViolation is returned when a module root changed kind
	// between runs, e.g. the persisted root is a directory but the live path
	// is a file.
	ErrStructuralViolation = errors.New("structural violation")

	// ErrMissingModuleRoot is returned when a module directory does not exist.
	ErrMissingModuleRoot = errors.New("module root does not exist")

	// ErrIO wraps underlying read/write failures.
	ErrIO = errors.New("io failure")
)

// ErrorKind names the class of a per-module failure.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindCorruptSnapshot     ErrorKind = "CorruptSnapshot"
	KindUnexpectedNodeType  ErrorKind = "UnexpectedNodeType"
	KindStructuralViolation ErrorKind = "StructuralViolation"
	KindMissingModuleRoot   ErrorKind = "MissingModuleRoot"
	KindIOFailure           ErrorKind = "IOFailure"
	KindCanceled            ErrorKind = "Canceled"
	KindUnknown             ErrorKind = "Unknown"
)

// Classify maps an error to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, snapshot.ErrUnexpectedNodeType):
		return KindUnexpectedNodeType
	case errors.Is(err, snapshot.ErrCorruptSnapshot):
		return KindCorruptSnapshot
	case errors.Is(err, ErrStructuralViolation):
		return KindStructuralViolation
	case errors.Is(err, ErrMissingModuleRoot):
		return KindMissingModuleRoot
	case errors.Is(err, ErrIO):
		return KindIOFailure
	case isCanceled(err):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// ModuleError is a failure while checking one module.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// Kind classifies the underlying error.
func (e *ModuleError) Kind() ErrorKind { return Classify(e.Err) }

// BatchError collects the per-module failures of one check pass.
type BatchError struct {
	Errors []*ModuleError
}

func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, me := range e.Errors {
		parts[i] = me.Error()
	}
	return fmt.Sprintf("%d modules failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is and errors.As see every module failure.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, me := range e.Errors {
		errs[i] = me
	}
	return errs
}

// Modules returns the names of the failed modules.
func (e *BatchError) Modules() []string {
	names := make([]string, len(e.Errors))
	for i, me := range e.Errors {
		names[i] = me.Module
	}
	return names
}

func ioErr(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
