package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/opsmgr/pkg/opsmanager/opsmanagertest"
	"github.com/cuemby/opsmgr/pkg/types"
)

const clusterConfig = `{
	"auth": {"autoUser": "mms-automation", "autoPwd": "s3cret"},
	"processes": [
		{"name": "rs0-0", "hostname": "db1.example.com", "processType": "mongod", "version": "4.0.12-ent", "featureCompatibilityVersion": "4.0", "disabled": false, "args2_6": {"net": {"port": 27018}}},
		{"name": "rs0-1", "hostname": "db2.example.com", "processType": "mongod", "version": "4.0.12-ent", "featureCompatibilityVersion": "4.0", "disabled": false, "args2_6": {"net": {"port": 27018}}},
		{"name": "cfg-0", "hostname": "db2.example.com", "processType": "mongod", "version": "4.0.12-ent", "featureCompatibilityVersion": "4.0", "disabled": false, "args2_6": {"net": {"port": 27019}}},
		{"name": "router-0", "hostname": "db2.example.com", "processType": "mongos", "version": "4.0.12-ent", "disabled": false, "args2_6": {"net": {"port": 27017}}}
	],
	"mongoDbVersions": [{"name": "4.0.12-ent", "builds": []}]
}`

type countingWaiter struct {
	calls int
	err   error
}

func (w *countingWaiter) Wait(ctx context.Context, group string) error {
	w.calls++
	return w.err
}

func newEditor(t *testing.T) (*Editor, *opsmanagertest.Server, *countingWaiter) {
	server := opsmanagertest.NewServer(t)
	server.SetConfig("g1", clusterConfig)
	waiter := &countingWaiter{}
	return NewEditor(server.Client(), waiter), server, waiter
}

func TestShutdownDBDisablesMongodOnly(t *testing.T) {
	editor, server, _ := newEditor(t)

	changed, err := editor.ShutdownDB(context.Background(), "g1", "db2.example.com", true)
	require.NoError(t, err)
	assert.True(t, changed)

	cfg := server.Config(t, "g1")
	assert.False(t, cfg.Processes[0].Disabled, "other host untouched")
	assert.True(t, cfg.Processes[1].Disabled)
	assert.True(t, cfg.Processes[2].Disabled)
	assert.False(t, cfg.Processes[3].Disabled, "mongos untouched")

	// Unmodeled fields survive the round trip
	port, err := cfg.Processes[1].Port()
	require.NoError(t, err)
	assert.Equal(t, 27018, port)
}

func TestShutdownDBIsIdempotent(t *testing.T) {
	editor, server, _ := newEditor(t)
	ctx := context.Background()

	_, err := editor.ShutdownDB(ctx, "g1", "db1.example.com", true)
	require.NoError(t, err)
	changed, err := editor.ShutdownDB(ctx, "g1", "db1.example.com", true)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 1, server.Count("PUT", "/automationConfig"))
}

func TestShutdownDBUnknownHostIsNoop(t *testing.T) {
	editor, server, _ := newEditor(t)

	changed, err := editor.ShutdownDB(context.Background(), "g1", "db9.example.com", true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, server.Count("PUT", "/automationConfig"))
}

func TestEnableVersion(t *testing.T) {
	editor, server, _ := newEditor(t)
	cfg := server.Config(t, "g1")

	editor.EnableVersion(cfg, "4.2.1")
	require.Len(t, cfg.MongoDBVersions, 2)

	added := cfg.MongoDBVersions[1]
	assert.Equal(t, "4.2.1-ent", added.Name)
	require.Len(t, added.Builds, 1)
	build := added.Builds[0]
	assert.Equal(t, "amd64", build.Architecture)
	assert.Equal(t, 64, build.Bits)
	assert.Equal(t, "rhel", build.Flavor)
	assert.Equal(t, "linux", build.Platform)
	assert.Equal(t, []string{"enterprise"}, build.Modules)
	assert.Equal(t, server.URL+"/automation/mongodb-releases/linux/mongodb-linux-x86_64-enterprise-rhel62-4.2.1.tgz", build.URL)

	// Running again does not add a second entry
	editor.EnableVersion(cfg, "4.2.1")
	assert.Len(t, cfg.MongoDBVersions, 2)

	// Already cataloged versions are left alone
	editor.EnableVersion(cfg, "4.0.12")
	assert.Len(t, cfg.MongoDBVersions, 2)
}

func TestCompatibilityVersion(t *testing.T) {
	tests := []struct {
		name      string
		installed string
		fcv       string
		target    string
		staged    bool
		wantFCV   string
	}{
		{"minor upgrade pins previous release", "4.0.12-ent", "4.0", "4.2.1", true, "4.0"},
		{"fcv two releases behind", "4.2.3-ent", "3.6", "4.2.5", true, "4.0"},
		{"major upgrade uses release table", "4.4.10-ent", "4.4", "5.0.2", true, "4.4"},
		{"patch upgrade never stages", "4.2.1-ent", "4.2", "4.2.8", false, "4.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := opsmanagertest.NewServer(t)
			waiter := &countingWaiter{}
			editor := NewEditor(server.Client(), waiter)

			cfg := &types.AutomationConfig{Processes: []*types.Process{
				{Hostname: "db1", Version: tt.installed, FeatureCompatibilityVersion: tt.fcv},
				{Hostname: "db2", Version: tt.installed, FeatureCompatibilityVersion: tt.fcv},
			}}

			staged, err := editor.CompatibilityVersion(context.Background(), "g1", cfg, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.staged, staged)

			for _, p := range cfg.Processes {
				assert.Equal(t, tt.wantFCV, p.FeatureCompatibilityVersion)
			}

			if tt.staged {
				assert.Equal(t, 1, server.Count("PUT", "/automationConfig"))
				assert.Equal(t, 1, waiter.calls)
			} else {
				assert.Equal(t, 0, server.Count("PUT", "/automationConfig"))
				assert.Equal(t, 0, waiter.calls)
			}
		})
	}
}

func TestCheckUpgradePath(t *testing.T) {
	tests := []struct {
		installed string
		target    string
		ok        bool
	}{
		{"4.0.12-ent", "4.2.1", true},
		{"4.2.8-ent", "4.4.0", true},
		{"4.4.10-ent", "5.0.2", true},
		{"4.2.8-ent", "4.2.9", true},
		{"4.2.8-ent", "5.0.2", false},
		{"3.6.5-ent", "4.2.1", false},
	}

	for _, tt := range tests {
		cfg := &types.AutomationConfig{Processes: []*types.Process{
			{Hostname: "db1", Version: tt.installed},
			{Hostname: "db2", Version: tt.installed},
		}}
		err := CheckUpgradePath(cfg, tt.target)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.installed, tt.target)
		} else {
			assert.Error(t, err, "%s -> %s", tt.installed, tt.target)
		}
	}

	assert.NoError(t, CheckUpgradePath(&types.AutomationConfig{}, "4.2.1"))
}

func TestCompatibilityVersionWithoutProcesses(t *testing.T) {
	editor, _, _ := newEditor(t)
	_, err := editor.CompatibilityVersion(context.Background(), "g1", &types.AutomationConfig{}, "4.2.1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStagingFCV(t *testing.T) {
	tests := map[string]string{
		"4.2.1":  "4.0",
		"3.6.23": "3.4",
		"4.0.0":  "3.6",
		"5.0.14": "4.4",
		"6.0.1":  "5.0",
		"7.0.2":  "6.0",
		"8.0.0":  "7.0",
		"4.4.0":  "4.2",
	}
	for target, want := range tests {
		got, err := StagingFCV(target)
		require.NoError(t, err, target)
		assert.Equal(t, want, got, target)
	}

	_, err := StagingFCV("not-a-version")
	assert.Error(t, err)
	_, err = StagingFCV("2.0.0")
	assert.Error(t, err)
}

func TestSetVersion(t *testing.T) {
	cfg := &types.AutomationConfig{Processes: []*types.Process{{Version: "4.0.12-ent"}, {Version: "4.0.12-ent"}}}
	SetVersion(cfg, "4.2.1")
	for _, p := range cfg.Processes {
		assert.Equal(t, "4.2.1-ent", p.Version)
	}
}

func TestConnectionInfo(t *testing.T) {
	editor, _, _ := newEditor(t)
	cfg, err := editor.Config(context.Background(), "g1")
	require.NoError(t, err)

	info, err := ConnectionInfo(cfg)
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionInfo{User: "mms-automation", Password: "s3cret", Host: "db2.example.com", Port: 27017}, info)
	assert.Equal(t, "db2.example.com:27017", info.Address())

	_, err = ConnectionInfo(&types.AutomationConfig{Processes: []*types.Process{{ProcessType: "mongod"}}})
	assert.ErrorIs(t, err, types.ErrNotFound)
}
