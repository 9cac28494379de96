// Package storage is the local journal of opsmgr: maintenance leases held
// by earlier invocations and the record of every workflow run.
//
// BoltStore keeps both in a bbolt file under the state directory, which
// lets start-node release the window a previous stop-node acquired.
// MemoryStore is used when no state directory is configured.
package storage
