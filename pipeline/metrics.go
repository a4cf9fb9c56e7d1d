package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_documents_completed_total",
		Help: "Documents that finished processing with every chunk embedded.",
	})
	documentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_documents_failed_total",
		Help: "Documents whose processing ended in failure or cancellation.",
	})
	stageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_stage_retries_total",
		Help: "Stage attempts retried after a transient failure.",
	})
)
