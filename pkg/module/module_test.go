package module

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/opsmgr/pkg/config"
	"github.com/cuemby/opsmgr/pkg/manager"
	"github.com/cuemby/opsmgr/pkg/opsmanager/opsmanagertest"
	"github.com/cuemby/opsmgr/pkg/types"
)

const clusterConfig = `{
	"version": 3,
	"auth": {"autoUser": "mms-automation", "autoPwd": "s3cret"},
	"processes": [
		{"name": "router-0", "hostname": "router1.example.com", "processType": "mongos", "version": "4.0.12-ent", "args2_6": {"net": {"port": 27017}}}
	]
}`

type fakeInspector struct {
	states []types.MemberState
}

func (f fakeInspector) MemberStates(ctx context.Context, info types.ConnectionInfo) ([]types.MemberState, error) {
	return f.states, nil
}

func newAdapter(t *testing.T, states ...types.ReplicaState) (*Adapter, *opsmanagertest.Server) {
	server := opsmanagertest.NewServer(t)
	server.AddGroup(types.Group{ID: "g1", Name: "orders", ActiveAgentCount: 2})
	server.SetConfig("g1", clusterConfig)

	var inspector fakeInspector
	for i, s := range states {
		inspector.states = append(inspector.states, types.MemberState{ReplicaSet: "rs0", Name: string(rune('a' + i)), State: s})
	}

	base := config.Default()
	base.PollInterval = time.Millisecond
	open := func(cfg config.Config) (*manager.Manager, error) {
		return manager.NewWithOptions(cfg, manager.Options{Client: server.Client(), Inspector: inspector})
	}
	return NewWithOpener(base, open), server
}

func params(server *opsmanagertest.Server) Params {
	return Params{Cluster: "orders", User: "ops", Key: "k", MMS: server.URL}
}

func TestParamsValidate(t *testing.T) {
	err := Params{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster is required")
	assert.Contains(t, err.Error(), "mms is required")

	assert.NoError(t, Params{Cluster: "c", User: "u", Key: "k", MMS: "https://om"}.Validate())
}

func TestParamsApply(t *testing.T) {
	cfg := Params{User: "u", Key: "k", MMS: "https://om", Verify: "false"}.Apply(config.Default())
	assert.Equal(t, "https://om", cfg.BaseURL)
	assert.Equal(t, "k", cfg.APIKey)
	assert.False(t, cfg.TLS.Verify)

	cfg = Params{MMS: "https://om"}.Apply(config.Default())
	assert.True(t, cfg.TLS.Verify)
}

func TestDeploymentStatus(t *testing.T) {
	a, server := newAdapter(t)

	res := a.DeploymentStatus(context.Background(), params(server))
	assert.False(t, res.Failed, res.Msg)
	assert.False(t, res.Changed)
	assert.Equal(t, true, res.Meta)

	server.QueueStatus("g1", types.AutomationStatus{GoalVersion: 5, Processes: []types.ProcessStatus{{LastGoalVersionAchieved: 4}}})
	res = a.DeploymentStatus(context.Background(), params(server))
	assert.Equal(t, false, res.Meta)
}

func TestSetMaintenance(t *testing.T) {
	a, server := newAdapter(t)

	res := a.SetMaintenance(context.Background(), params(server))
	require.False(t, res.Failed, res.Msg)
	window, ok := res.Meta.(types.MaintenanceWindow)
	require.True(t, ok)
	assert.Equal(t, "mw1", window.ID)

	res = a.SetMaintenance(context.Background(), params(server))
	assert.True(t, res.Failed)
	assert.Contains(t, res.Msg, "maintenance window already set")
	assert.Len(t, server.Windows("g1"), 1)
}

func TestCheckSync(t *testing.T) {
	a, server := newAdapter(t, types.ReplicaPrimary, types.ReplicaSecondary, types.ReplicaPrimary)
	res := a.CheckSync(context.Background(), params(server))
	assert.False(t, res.Failed, res.Msg)
	assert.Equal(t, 0, res.Meta)

	a, server = newAdapter(t, types.ReplicaPrimary, 3, types.ReplicaPrimary)
	res = a.CheckSync(context.Background(), params(server))
	assert.True(t, res.Failed)
	assert.Contains(t, res.Msg, "poor condition")
}

func TestRunUnknownCluster(t *testing.T) {
	a, server := newAdapter(t)
	p := params(server)
	p.Cluster = "billing"

	res := a.Run(context.Background(), CommandCheckSync, p)
	assert.True(t, res.Failed)

	res = a.Run(context.Background(), "reboot", p)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Msg, "reboot")
}

func TestRunRejectsInvalidParams(t *testing.T) {
	a, server := newAdapter(t)

	res := a.Run(context.Background(), CommandDeploymentStatus, Params{})
	assert.True(t, res.Failed)
	assert.Empty(t, server.Requests())
}

func TestRender(t *testing.T) {
	res := Result{Meta: map[string]any{"id": "mw1"}}

	var buf bytes.Buffer
	require.NoError(t, res.Render(&buf, FormatJSON))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, false, doc["changed"])
	assert.NotContains(t, doc, "failed")

	buf.Reset()
	require.NoError(t, res.Render(&buf, FormatYAML))
	doc = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "mw1", doc["meta"].(map[string]any)["id"])

	assert.Error(t, res.Render(&buf, "xml"))
}

func TestFailedResultKeepsKind(t *testing.T) {
	a, server := newAdapter(t)
	require.False(t, a.SetMaintenance(context.Background(), params(server)).Failed)

	res := a.SetMaintenance(context.Background(), params(server))
	assert.Equal(t, types.KindMaintenanceConflict, types.KindOf(res.Err()))
	assert.NoError(t, Result{}.Err())
}
