/*

This file contains the typed result returned by every asynchronous boundary operation,
so callers can render success, empty and failure states without inspecting raw errors.

*/

package types

import "time"

type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusEmpty ResultStatus = "empty"
	StatusError ResultStatus = "error"
)

type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNetwork            ErrorKind = "network"
	KindTimeout            ErrorKind = "timeout"
	KindCanceled           ErrorKind = "canceled"
	KindInvalidData        ErrorKind = "invalid_data"
	KindWalletNotInstalled ErrorKind = "wallet_not_installed"
	KindNoAccount          ErrorKind = "no_account"
	KindStale              ErrorKind = "stale"
	KindRejected           ErrorKind = "rejected"
	KindInvalidInput       ErrorKind = "invalid_input"
)

// Result is the outcome of a store action or boundary call.
type Result[T any] struct {
	Status  ResultStatus `json:"status"`
	Value   T            `json:"value,omitempty"`
	Kind    ErrorKind    `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
}

func OK[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

// Empty is a result that carries no value but is not a failure (e.g. no account yet).
func Empty[T any](kind ErrorKind, message string) Result[T] {
	return Result[T]{Status: StatusEmpty, Kind: kind, Message: message}
}

func Fail[T any](kind ErrorKind, err error) Result[T] {
	r := Result[T]{Status: StatusError, Kind: kind}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

func (r Result[T]) IsOK() bool    { return r.Status == StatusOK }
func (r Result[T]) IsEmpty() bool { return r.Status == StatusEmpty }
func (r Result[T]) IsError() bool { return r.Status == StatusError }

// Retryable reports whether the failure is transient and worth offering a retry for.
func (r Result[T]) Retryable() bool {
	return r.Status == StatusError && (r.Kind == KindNetwork || r.Kind == KindTimeout)
}

// Err returns the failure as an error, or nil for ok/empty results.
func (r Result[T]) Err() error {
	if r.Status != StatusError {
		return nil
	}
	return &ResultError{Kind: r.Kind, Message: r.Message}
}

// Outcome strips the value so the status can be kept in state alongside other fields.
func (r Result[T]) Outcome(at time.Time) Outcome {
	return Outcome{Status: r.Status, Kind: r.Kind, Message: r.Message, At: at}
}

// Outcome is the value-less status of the last operation on a state field.
type Outcome struct {
	Status  ResultStatus `json:"status"`
	Kind    ErrorKind    `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
	At      time.Time    `json:"at"`
}

// ResultError is the error form of a failed Result.
type ResultError struct {
	Kind    ErrorKind
	Message string
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}
