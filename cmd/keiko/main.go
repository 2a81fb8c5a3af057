package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0 // Batch finished with every run completed
	ExitRunsBad = 1 // Batch finished but some runs failed or were incomplete
	ExitError   = 2 // Configuration or runtime error
)

// RunFailureError indicates that the batch itself ran, but one or more runs
// ended failed or incomplete.
type RunFailureError struct {
	Message string
}

func (e *RunFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var runFailureErr *RunFailureError
		if errors.As(err, &runFailureErr) {
			os.Exit(ExitRunsBad)
		}
		os.Exit(ExitError)
	}
}
