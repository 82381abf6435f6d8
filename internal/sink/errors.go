package sink

import "errors"

var (
	// ErrRejected means the sink returned a response (3xx or 4xx) that the
	// gateway treats as a terminal, non-retryable rejection of the message.
	ErrRejected = errors.New("sink rejected message")

	// ErrUnavailable means every attempt failed with a network error or a
	// 5xx response; the retry budget was exhausted without a usable reply.
	ErrUnavailable = errors.New("sink unavailable")
)
