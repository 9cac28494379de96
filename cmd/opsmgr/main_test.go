package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/events"
	"github.com/cuemby/opsmgr/pkg/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{errors.New("usage"), 1},
		{&types.TransportError{Method: "GET", Endpoint: "/groups", StatusCode: 401}, 2},
		{fmt.Errorf("check: %w", types.ErrClusterBusy), 3},
		{fmt.Errorf("health: %w", types.ErrClusterUnhealthy), 4},
		{types.ErrMaintenanceConflict, 5},
		{types.ErrConvergenceTimeout, 6},
		{types.ErrNotFound, 7},
		{fmt.Errorf("group nosuch: %w", multierr.Combine(types.ErrNotFound, &types.TransportError{Method: "GET", Endpoint: "/groups/byName/nosuch", StatusCode: 404})), 7},
		{context.Canceled, 130},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, exitCode(tt.err), "%v", tt.err)
	}
}

func TestPrintProgress(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()

	var buf bytes.Buffer
	done := printProgress(&buf, broker)

	broker.Publish(&events.Event{Type: events.EventStepStarted, Workflow: "stop", Step: "health"})
	broker.Publish(&events.Event{Type: events.EventStepSucceeded, Workflow: "stop", Step: "health"})
	broker.Publish(&events.Event{Type: events.EventStepFailed, Workflow: "stop", Step: "acquire", Message: "window held"})
	broker.Stop()
	<-done

	assert.Equal(t, "✓ stop health\n✗ stop acquire: window held\n", buf.String())
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"maintenance", "upgrade", "module", "groups", "runs"} {
		cmd, _, err := rootCmd.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("mms"))
}
