/*
Package health decides whether a cluster can take a disruptive operation.

# Checks

The Gate composes three checks and evaluates them in order, stopping at
the first failure:

	goal    the automation agents reached the goal state
	        (types.ErrClusterBusy otherwise)
	alerts  the group has no OPEN alert
	        (types.ErrClusterUnhealthy otherwise)
	sync    no replica set member is in a poor state
	        (types.ErrClusterUnhealthy otherwise)

Every check yields a Result and is counted in
opsmgr_health_checks_total by check and result.

# Replica Inspection

The sync check derives the router address and the automation agent
credentials from the automation configuration, then asks a
ReplicaInspector for the member states of every shard. MongoInspector
connects to the router with the MongoDB driver (SCRAM-SHA-1 against
admin), runs listShards, and runs replSetGetStatus on each shard replica
set:

	router ──listShards──▶ shard0/db1:27018,db2:27018
	                       shard1/db3:27018,db4:27018
	                             │
	                             ▼
	               replSetGetStatus per shard ──▶ []types.MemberState

Before connecting, a TCPChecker verifies that the router accepts
connections so an unreachable router fails fast with a clear message.

The credentials are read for the duration of one check and never logged
or stored.
*/
package health
