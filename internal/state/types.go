package state

import (
	"time"
)

// Pass is the outcome of one reconciliation run.
type Pass struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Hostname string        `json:"hostname"`
	Address  string        `json:"address,omitempty"`
	Matched  int           `json:"matched"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Deleted  int           `json:"deleted"`
	Failures int           `json:"failures"`
	DryRun   bool          `json:"dryRun"`
	Error    string        `json:"error,omitempty"`
}

func (p Pass) Succeeded() bool {
	return p.Error == "" && p.Failures == 0
}
