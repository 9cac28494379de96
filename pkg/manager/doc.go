/*
Package manager assembles the components of one opsmgr invocation.

A Manager is built from a config.Config and owns:

  - the Ops Manager API client (digest auth, TLS mode)
  - the local journal (bbolt under StateDir, or memory)
  - the event broker publishing workflow progress
  - the convergence poller, automation editor, health gate, maintenance
    lease manager and upgrade orchestrator
  - the workflow driver sequencing them

Close must be called once the invocation is over: it stops the broker,
which closes every subscriber, and releases the bbolt file lock.

The JournalCollector exports the journal content (leases held, runs by
workflow and result) through the opsmgr metrics registry.
*/
package manager
