/*
Package types defines the Ops Manager documents and error kinds shared by
every opsmgr package.

# Documents

The automation configuration is owned by Ops Manager and replaced wholesale
on every PUT. AutomationConfig, Process, Auth, MongoDBVersion and Build only
model the fields opsmgr reads or mutates; all other fields are kept in the
Extra map of each document and written back as they were read:

	cfg := &types.AutomationConfig{}
	_ = json.Unmarshal(data, cfg)   // unknown fields land in cfg.Extra
	cfg.Processes[0].Disabled = true
	out, _ := json.Marshal(cfg)     // unknown fields are emitted again

AutomationStatus carries the cluster-wide goal version and the last goal
version each process achieved. The cluster is converged when every process
achieved the goal version.

MaintenanceWindow, Alert, Host and Group mirror the public API resources of
the same name. Page wraps paginated list responses.

# Replica States

ReplicaState holds the numeric member state from replSetGetStatus. Poor
returns true for the states that block maintenance:

	STARTUP(0) RECOVERING(3) STARTUP2(5) UNKNOWN(6) DOWN(8) ROLLBACK(9) REMOVED(10)

# Errors

Operations return the sentinel errors of this package wrapped with context.
KindOf maps any error back to its Kind so callers can branch on the outcome
without string matching:

	switch types.KindOf(err) {
	case types.KindClusterBusy:
		// retry the whole invocation later
	case types.KindMaintenanceConflict:
		// someone else holds the cluster
	}
*/
package types
