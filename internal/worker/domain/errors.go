package domain

import "errors"

var (
	// ErrMalformedMessage is returned when a queue message body cannot be
	// parsed into a job; such messages are deleted immediately since
	// redelivery cannot make them valid
	ErrMalformedMessage = errors.New("malformed job message")

	// ErrPresignRequest is returned when the control service refuses to
	// issue a transfer URL
	ErrPresignRequest = errors.New("presign request failed")

	// ErrTransfer is returned when a direct blob transfer fails
	ErrTransfer = errors.New("blob transfer failed")

	// ErrAssetUnavailable is returned when a model asset listed in the
	// manifest cannot be downloaded
	ErrAssetUnavailable = errors.New("model asset unavailable")

	// ErrProcessing is returned when the processing step fails on a
	// staged input
	ErrProcessing = errors.New("processing failed")

	// ErrStaleLease is returned when completing a job whose receipt handle
	// expired or was already acknowledged; callers treat it as a no-op
	ErrStaleLease = errors.New("stale lease")
)
