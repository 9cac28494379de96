// Package automation edits the Ops Manager automation configuration:
// enabling and disabling processes, registering MongoDB builds, staging the
// feature compatibility version and moving processes to a new version.
// Every change is a read-modify-write of the whole document.
package automation
