package manager

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuemby/opsmgr/pkg/storage"
)

var (
	journalLeasesDesc = prometheus.NewDesc(
		"opsmgr_journal_leases",
		"Maintenance leases recorded in the local journal",
		nil, nil,
	)
	journalRunsDesc = prometheus.NewDesc(
		"opsmgr_journal_runs",
		"Workflow runs recorded in the local journal by workflow and result",
		[]string{"workflow", "result"}, nil,
	)
)

// JournalCollector exports the content of the local journal at scrape
// time
type JournalCollector struct {
	store storage.Store
}

// NewJournalCollector creates a collector reading store
func NewJournalCollector(store storage.Store) *JournalCollector {
	return &JournalCollector{store: store}
}

// Describe implements prometheus.Collector
func (c *JournalCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- journalLeasesDesc
	ch <- journalRunsDesc
}

// Collect implements prometheus.Collector
func (c *JournalCollector) Collect(ch chan<- prometheus.Metric) {
	if leases, err := c.store.ListLeases(); err == nil {
		ch <- prometheus.MustNewConstMetric(journalLeasesDesc, prometheus.GaugeValue, float64(len(leases)))
	}

	runs, err := c.store.ListRuns()
	if err != nil {
		return
	}

	type key struct{ workflow, result string }
	counts := make(map[key]int)
	for _, run := range runs {
		counts[key{run.Workflow, run.Result}]++
	}
	for k, n := range counts {
		ch <- prometheus.MustNewConstMetric(journalRunsDesc, prometheus.GaugeValue, float64(n), k.workflow, k.result)
	}
}
