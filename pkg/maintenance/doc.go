/*
Package maintenance treats the maintenance window of a group as a
cooperative lock between opsmgr invocations.

A group is Clear when it has no unexpired window and Active otherwise.
Set moves it from Clear to Active and fails with
types.ErrMaintenanceConflict when it is already Active. The window
description names the lease owner:

	opsmgr lease owner=3f0c9a4e-... host=ops-runner-1

Release only deletes a window carrying its own owner. WithLease scopes a
lease to a function and releases it on every exit path, including panics
and canceled contexts.

Leases are saved in the storage journal so a later invocation can release
what an earlier one acquired.
*/
package maintenance
