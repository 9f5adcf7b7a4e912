package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms/openai"
)

// ErrorKind tags why a generation call failed.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindQuota     ErrorKind = "quota"
	KindMalformed ErrorKind = "malformed"
	KindOther     ErrorKind = "other"
)

// ErrEmptyCompletion is returned when the API answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// GenerationError is returned by Client.Generate for every failed call.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind carried by err, or "" when err is not a
// GenerationError.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Classify maps a raw client error to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())

	switch {
	case strings.Contains(e, "429"),
		strings.Contains(e, "quota"),
		strings.Contains(e, "rate limit"),
		strings.Contains(e, "credit"):
		return KindQuota
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr),
		errors.As(err, &typeErr),
		errors.Is(err, ErrEmptyCompletion),
		errors.Is(err, openai.ErrEmptyResponse),
		strings.Contains(e, "invalid character"),
		strings.Contains(e, "unexpected end of json"):
		return KindMalformed
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		strings.Contains(e, "connection refused"),
		strings.Contains(e, "no such host"),
		strings.Contains(e, "timeout"),
		strings.Contains(e, "deadline exceeded"),
		strings.Contains(e, "status code: 5"):
		return KindNetwork
	}
	return KindOther
}
