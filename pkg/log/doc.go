/*
Package log provides structured logging for opsmgr using zerolog.

Init configures the global Logger once per process. Console output is the
default; JSON output is selected with the --json-logs flag. When an error
log file is configured, every error level event is also appended to it:

	log.Init(log.Config{
		Level:     log.InfoLevel,
		ErrorFile: "/var/log/opsmgr/errors.log",
	})
	defer log.Close()

Components take a child logger carrying their name and add the group or
host they work on:

	logger := log.WithComponent("maintenance")
	logger.Info().Str("group_id", group).Msg("Maintenance window created")

Secrets (API keys, automation agent passwords) are never logged.
*/
package log
