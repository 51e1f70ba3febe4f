// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package paper

import "fmt"

// ConversionError reports that the digest could not be produced. It is
// fatal for the run: nothing is sent.
type ConversionError struct {
	Recipe   string
	ExitCode int
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("couldn't download RSS feeds for recipe %s: %v", e.Recipe, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// SendError reports a failed delivery to one recipient. It never aborts the
// remaining deliveries.
type SendError struct {
	Recipient string
	ExitCode  int
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("error sending the paper to %s: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
