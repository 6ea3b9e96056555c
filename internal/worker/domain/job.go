package domain

import "time"

// Job is one leased delivery of a processing request. Redelivery of the same
// originalKey yields a new Job with a new receipt handle; the previous
// handle is invalid from that point on.
type Job struct {
	OriginalKey   string
	MessageID     string
	ReceiptHandle string
	LeaseDeadline time.Time
}

// JobMessage is the wire form of a job on the queue
type JobMessage struct {
	OriginalKey string `json:"originalKey"`
}

// Outcome is the completion decision for one job. A success outcome exists
// only after the result blob has been durably stored.
type Outcome struct {
	Success   bool
	ResultKey string
	Reason    string
}

// SuccessOutcome builds the outcome for a stored result
func SuccessOutcome(resultKey string) Outcome {
	return Outcome{Success: true, ResultKey: resultKey}
}

// FailureOutcome builds the outcome for a failed job
func FailureOutcome(reason string) Outcome {
	return Outcome{Success: false, Reason: reason}
}
