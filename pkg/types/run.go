// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the configuration and run records shared between the
// morning-paper CLI, the delivery orchestrator and the run history.
package types

import "time"

// Outcome is the terminal state of a run.
type Outcome string

const (
	// OutcomeSent means the digest was produced and every recipient was
	// attempted. Individual deliveries may still have failed.
	OutcomeSent Outcome = "sent"

	// OutcomeConversionFailed means ebook-convert failed and nothing was sent.
	OutcomeConversionFailed Outcome = "conversion_failed"
)

// Delivery is the result of one calibre-smtp invocation.
type Delivery struct {
	Recipient string `json:"recipient" yaml:"recipient"`
	OK        bool   `json:"ok" yaml:"ok"`
	ExitCode  int    `json:"exit_code" yaml:"exit_code"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunRecord summarizes one run from configuration to cleanup.
type RunRecord struct {
	ID         string     `json:"id" yaml:"id"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time  `json:"finished_at" yaml:"finished_at"`
	Recipe     string     `json:"recipe" yaml:"recipe"`
	OutputPath string     `json:"output_path" yaml:"output_path"`
	Outcome    Outcome    `json:"outcome" yaml:"outcome"`
	Kept       bool       `json:"kept" yaml:"kept"`
	Deliveries []Delivery `json:"deliveries,omitempty" yaml:"deliveries,omitempty"`
}

// Failed returns the number of deliveries that did not succeed.
func (r RunRecord) Failed() int {
	n := 0
	for _, d := range r.Deliveries {
		if !d.OK {
			n++
		}
	}
	return n
}
