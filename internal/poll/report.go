package poll

import "time"

// TickReport summarizes one tick.
type TickReport struct {
	ID       string
	Started  time.Time
	Finished time.Time

	Listed  int
	Fetched int
	Written int
	Skipped int // name could not be derived
	Failed  int // write failed

	Outcomes []Outcome

	// The error that ended the tick early, if any.
	Err error
}

// Outcome is what happened to one fetched message.
type Outcome struct {
	MessageID string

	// Path written; empty unless the message was saved.
	File string

	Skipped bool
	Reason  string
}
