package queue

import "errors"

// ErrPermanentFailure marks a processing failure that no redelivery will
// fix. Consumers acknowledge these to the queue instead of requesting a
// retry; anything not wrapping this sentinel is treated as transient.
var ErrPermanentFailure = errors.New("permanent failure processing message")

// IsPermanent reports whether err is a permanent processing failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}
