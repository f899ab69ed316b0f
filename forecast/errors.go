package forecast

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure kind of Predict. The texts of
// ErrInvalidPayload and ErrMissingField are what clients see.
var (
	ErrInvalidPayload = errors.New("Invalid JSON payload")
	ErrMissingField   = errors.New("Missing or invalid JSON payload")
	ErrArityMismatch  = errors.New("feature count mismatch")
	ErrInference      = errors.New("inference failed")
)

const (
	KindInvalidPayload = "invalid_payload"
	KindMissingField   = "missing_field"
	KindArityMismatch  = "arity_mismatch"
	KindInference      = "inference_error"
)

type ArityError struct {
	Expected int
	Actual   int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("Expected %d features, but got %d", e.Expected, e.Actual)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArityMismatch
}

// InferenceError wraps a failure raised while coercing the features or
// running the model. Its message is the underlying error's message.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func (e *InferenceError) Is(target error) bool {
	return target == ErrInference
}

// Kind classifies an error returned by Predict. It returns "" for nil and
// for errors Predict never produces.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPayload):
		return KindInvalidPayload
	case errors.Is(err, ErrMissingField):
		return KindMissingField
	case errors.Is(err, ErrArityMismatch):
		return KindArityMismatch
	case errors.Is(err, ErrInference):
		return KindInference
	default:
		return ""
	}
}

// Message is the text reported to the client for err.
func Message(err error) string {
	var arityErr *ArityError
	var inferenceErr *InferenceError
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return ErrInvalidPayload.Error()
	case errors.Is(err, ErrMissingField):
		return ErrMissingField.Error()
	case errors.As(err, &arityErr):
		return arityErr.Error()
	case errors.As(err, &inferenceErr):
		return inferenceErr.Error()
	default:
		return err.Error()
	}
}
