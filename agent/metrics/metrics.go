// Package metrics exposes the engine's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "difflin_requests_processed_total",
		Help: "Workflow requests processed, by final status.",
	}, []string{"status"})

	ToolRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "difflin_tool_retries_total",
		Help: "Tool call retry attempts after transient failures.",
	}, []string{"tool"})

	CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "difflin_commit_conflicts_total",
		Help: "Transaction commits rejected due to concurrent conflicts.",
	})

	CommittedTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "difflin_transactions_committed_total",
		Help: "Transactions committed to the ledger.",
	})
)
