package pipeline

import "errors"

var (
	// ErrMalformedTemplate means the model's template output stayed unusable
	// after every structured attempt. It wraps llm.ErrMalformedOutput.
	ErrMalformedTemplate = errors.New("malformed template output")

	// ErrPairing means the answers do not line up one to one with the questions.
	ErrPairing = errors.New("questions and answers do not pair up")

	// ErrEmptyAnswer rejects a blank answer.
	ErrEmptyAnswer = errors.New("answer is empty")

	// ErrNotRetryable means the failed step would fail the same way again.
	ErrNotRetryable = errors.New("step cannot be retried")

	// ErrInvalidTransition means the operation is not allowed in the current phase.
	ErrInvalidTransition = errors.New("operation not valid in this phase")
)
