/*
Package metrics defines the Prometheus metrics of opsmgr.

opsmgr is a short-lived command, so nothing is served over HTTP. The
metrics live in a dedicated Registry and are written in the node exporter
textfile format on exit when --metrics-textfile is set:

	defer metrics.WriteTextfile(cfg.MetricsTextfile)

# Metrics

	opsmgr_api_requests_total{method,status}     Ops Manager API calls
	opsmgr_api_request_duration_seconds{method}  API call latency
	opsmgr_convergence_polls_total               automation status polls
	opsmgr_convergence_wait_seconds              time to reach goal state
	opsmgr_health_checks_total{check,result}     health gate outcomes
	opsmgr_workflow_runs_total{workflow,result}  workflow outcomes
	opsmgr_maintenance_windows_active            windows held by this process

A status label of "error" means the request failed before a response
arrived.

Timer measures a duration and records it on an Observer:

	timer := metrics.NewTimer()
	err := poller.Wait(ctx, group)
	timer.ObserveDuration(metrics.ConvergenceWait)
*/
package metrics
