package main

import (
	"fmt"
	"io"

	"github.com/cuemby/opsmgr/pkg/events"
)

// printProgress writes one line per finished step until the broker stops.
// The returned channel is closed once every event was printed.
func printProgress(w io.Writer, broker *events.Broker) <-chan struct{} {
	sub := broker.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range sub {
			switch ev.Type {
			case events.EventStepSucceeded:
				fmt.Fprintf(w, "✓ %s %s\n", ev.Workflow, ev.Step)
			case events.EventStepFailed:
				fmt.Fprintf(w, "✗ %s %s: %s\n", ev.Workflow, ev.Step, ev.Message)
			case events.EventWorkflowCompleted:
				fmt.Fprintf(w, "✓ %s completed\n", ev.Workflow)
			}
		}
	}()

	return done
}
