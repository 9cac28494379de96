package health

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/opsmgr/pkg/opsmanager/opsmanagertest"
	"github.com/cuemby/opsmgr/pkg/types"
)

const routerConfig = `{
	"auth": {"autoUser": "mms-automation", "autoPwd": "s3cret"},
	"processes": [
		{"hostname": "db1.example.com", "processType": "mongod", "version": "4.0.12-ent", "args2_6": {"net": {"port": 27018}}},
		{"hostname": "router1.example.com", "processType": "mongos", "version": "4.0.12-ent", "args2_6": {"net": {"port": 27017}}}
	],
	"mongoDbVersions": []
}`

type staticGoal struct {
	converged bool
	err       error
}

func (p staticGoal) GoalStatus(ctx context.Context, group string) (bool, error) {
	return p.converged, p.err
}

type fakeInspector struct {
	states []types.ReplicaState
	err    error
	calls  int
	info   types.ConnectionInfo
}

func (f *fakeInspector) MemberStates(ctx context.Context, info types.ConnectionInfo) ([]types.MemberState, error) {
	f.calls++
	f.info = info
	if f.err != nil {
		return nil, f.err
	}
	var out []types.MemberState
	for i, s := range f.states {
		out = append(out, types.MemberState{ReplicaSet: "rs0", Name: string(rune('a' + i)), State: s})
	}
	return out, nil
}

func newGate(t *testing.T, converged bool, inspector *fakeInspector) (*Gate, *opsmanagertest.Server) {
	server := opsmanagertest.NewServer(t)
	server.SetConfig("g1", routerConfig)
	return NewGate(server.Client(), staticGoal{converged: converged}, inspector), server
}

func TestSync(t *testing.T) {
	tests := []struct {
		name    string
		states  []types.ReplicaState
		wantErr error
	}{
		{"primary and secondaries", []types.ReplicaState{1, 2, 1}, nil},
		{"arbiter is healthy", []types.ReplicaState{1, 2, 7}, nil},
		{"recovering member", []types.ReplicaState{1, 3, 1}, types.ErrClusterUnhealthy},
		{"poor state in last position", []types.ReplicaState{1, 2, 8}, types.ErrClusterUnhealthy},
		{"removed member", []types.ReplicaState{10, 1, 2}, types.ErrClusterUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := &fakeInspector{states: tt.states}
			gate, _ := newGate(t, true, inspector)

			code, err := gate.Sync(context.Background(), "g1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, types.KindClusterUnhealthy, types.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, code)
		})
	}
}

func TestSyncUsesRouterFromConfig(t *testing.T) {
	inspector := &fakeInspector{states: []types.ReplicaState{1}}
	gate, _ := newGate(t, true, inspector)

	_, err := gate.Sync(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionInfo{
		User:     "mms-automation",
		Password: "s3cret",
		Host:     "router1.example.com",
		Port:     27017,
	}, inspector.info)
}

func TestAlerts(t *testing.T) {
	inspector := &fakeInspector{}
	gate, server := newGate(t, true, inspector)
	ctx := context.Background()

	// No alerts at all
	require.NoError(t, gate.Alerts(ctx, "g1"))

	server.SetAlerts("g1", types.Alert{ID: "a1", Status: "CLOSED"}, types.Alert{ID: "a2", Status: "TRACKING"})
	require.NoError(t, gate.Alerts(ctx, "g1"))

	server.SetAlerts("g1", types.Alert{ID: "a1", Status: "CLOSED"}, types.Alert{ID: "a3", Status: "OPEN", TypeName: "HOST", EventTypeName: "HOST_DOWN"})
	err := gate.Alerts(ctx, "g1")
	assert.ErrorIs(t, err, types.ErrClusterUnhealthy)
	assert.Contains(t, err.Error(), "HOST_DOWN")
}

func TestAlertsReadsEveryPage(t *testing.T) {
	gate, server := newGate(t, true, &fakeInspector{})
	server.SetPageSize(1)
	server.SetAlerts("g1",
		types.Alert{ID: "a1", Status: "CLOSED"},
		types.Alert{ID: "a2", Status: "OPEN", TypeName: "REPLICA_SET", EventTypeName: "NO_PRIMARY"},
	)

	err := gate.Alerts(context.Background(), "g1")
	assert.ErrorIs(t, err, types.ErrClusterUnhealthy)
	assert.Contains(t, err.Error(), "NO_PRIMARY")
	assert.Equal(t, 2, server.Count("GET", "/alerts"))
}

func TestCheckClusterBusyShortCircuits(t *testing.T) {
	inspector := &fakeInspector{states: []types.ReplicaState{1}}
	gate, server := newGate(t, false, inspector)

	err := gate.CheckCluster(context.Background(), "g1")
	assert.ErrorIs(t, err, types.ErrClusterBusy)
	assert.Equal(t, 0, server.Count("GET", "/alerts"))
	assert.Equal(t, 0, inspector.calls)
}

func TestCheckClusterStopsAtAlerts(t *testing.T) {
	inspector := &fakeInspector{states: []types.ReplicaState{1}}
	gate, server := newGate(t, true, inspector)
	server.SetAlerts("g1", types.Alert{ID: "a1", Status: "OPEN"})

	err := gate.CheckCluster(context.Background(), "g1")
	assert.ErrorIs(t, err, types.ErrClusterUnhealthy)
	assert.Equal(t, 0, inspector.calls)
}

func TestCheckClusterHealthy(t *testing.T) {
	inspector := &fakeInspector{states: []types.ReplicaState{1, 2, 2}}
	gate, _ := newGate(t, true, inspector)

	require.NoError(t, gate.CheckCluster(context.Background(), "g1"))
	assert.Equal(t, 1, inspector.calls)
}

func TestCheckClusterPropagatesInspectorErrors(t *testing.T) {
	inspector := &fakeInspector{err: errors.New("connection refused")}
	gate, _ := newGate(t, true, inspector)

	err := gate.CheckCluster(context.Background(), "g1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotErrorIs(t, err, types.ErrClusterUnhealthy)
}

func TestShardHosts(t *testing.T) {
	rs, seeds := ShardHosts("shard0/db1.example.com:27018,db2.example.com:27018")
	assert.Equal(t, "shard0", rs)
	assert.Equal(t, []string{"db1.example.com:27018", "db2.example.com:27018"}, seeds)

	rs, seeds = ShardHosts("standalone.example.com:27018")
	assert.Empty(t, rs)
	assert.Equal(t, []string{"standalone.example.com:27018"}, seeds)
}

func TestTCPChecker(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	result := NewTCPChecker(listener.Addr().String()).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.Equal(t, CheckTypeRouter, NewTCPChecker("x").Type())

	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	result = NewTCPChecker(addr).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Error(t, result.Err)
}

func TestPoorMembers(t *testing.T) {
	poor := PoorMembers([]types.MemberState{
		{ReplicaSet: "rs1", Name: "db3:27018", State: types.ReplicaDown},
		{ReplicaSet: "rs0", Name: "db1:27018", State: types.ReplicaPrimary},
		{ReplicaSet: "rs0", Name: "db2:27018", State: types.ReplicaRecovering},
	})
	assert.Equal(t, []string{"rs0 db2:27018 RECOVERING", "rs1 db3:27018 DOWN"}, poor)
}
