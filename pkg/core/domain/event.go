package domain

import "time"

// ResolutionEvent is posted to a record's webhook after a successful redirect
type ResolutionEvent struct {
	Key           string    `json:"key"`
	Timestamp     time.Time `json:"timestamp"`
	CallerAddress string    `json:"callerAddress"`
	UserAgent     string    `json:"userAgent"`
}

// Resolution is the outcome of a fully admitted request.
type Resolution struct {
	Key    string `json:"key"`
	Target string `json:"target"`
	Hits   int64  `json:"hits"` // counter value after this hit
}
