package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	careerforge = "careerforge"

	// Work item metrics
	workItemsProcessedTotal    = "work_items_processed_total"
	workItemRetriesTotal       = "work_item_retries_total"
	workItemsDeadLetteredTotal = "work_items_dead_lettered_total"

	// Quota / admission metrics
	quotaDenialsTotal = "quota_denials_total"
	rateLimitedTotal  = "rate_limited_total"

	// Ingestion metrics
	postingsIngestedTotal    = "postings_ingested_total"
	notificationsQueuedTotal = "notifications_queued_total"

	// Interview metrics
	interviewExpirationsTotal = "interview_expirations_total"

	// Labels
	kindLabel     = "kind"
	resultLabel   = "result"
	resourceLabel = "resource"
	scopeLabel    = "scope"
)

var workItemsProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      workItemsProcessedTotal,
		Help:      "number of processed work items partitioned by kind and result",
	},
	[]string{kindLabel, resultLabel},
)

var workItemRetriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      workItemRetriesTotal,
		Help:      "number of work item retries partitioned by kind",
	},
	[]string{kindLabel},
)

var workItemsDeadLetteredTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      workItemsDeadLetteredTotal,
		Help:      "number of work items moved to the dead letter state",
	},
	[]string{kindLabel},
)

var quotaDenialsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      quotaDenialsTotal,
		Help:      "number of denied quota reservations partitioned by resource",
	},
	[]string{resourceLabel},
)

var rateLimitedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      rateLimitedTotal,
		Help:      "number of throttled admissions partitioned by scope",
	},
	[]string{scopeLabel},
)

var postingsIngestedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      postingsIngestedTotal,
		Help:      "number of ingested job postings partitioned by upsert result",
	},
	[]string{resultLabel},
)

var notificationsQueuedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      notificationsQueuedTotal,
		Help:      "number of notification events queued for delivery",
	},
)

var interviewExpirationsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: careerforge,
		Name:      interviewExpirationsTotal,
		Help:      "number of interview sessions expired by budget exhaustion",
	},
)

func IncreaseWorkItemsProcessedMetric(kind, result string) {
	workItemsProcessedTotalMetric.With(prometheus.Labels{kindLabel: kind, resultLabel: result}).Inc()
}

func IncreaseWorkItemRetriesMetric(kind string) {
	workItemRetriesTotalMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func IncreaseWorkItemsDeadLetteredMetric(kind string) {
	workItemsDeadLetteredTotalMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func IncreaseQuotaDenialsMetric(resource string) {
	quotaDenialsTotalMetric.With(prometheus.Labels{resourceLabel: resource}).Inc()
}

func IncreaseRateLimitedMetric(scope string) {
	rateLimitedTotalMetric.With(prometheus.Labels{scopeLabel: scope}).Inc()
}

func IncreasePostingsIngestedMetric(result string) {
	postingsIngestedTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseNotificationsQueuedMetric() {
	notificationsQueuedTotalMetric.Inc()
}

func IncreaseInterviewExpirationsMetric() {
	interviewExpirationsTotalMetric.Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(workItemsProcessedTotalMetric)
	prometheus.MustRegister(workItemRetriesTotalMetric)
	prometheus.MustRegister(workItemsDeadLetteredTotalMetric)
	prometheus.MustRegister(quotaDenialsTotalMetric)
	prometheus.MustRegister(rateLimitedTotalMetric)
	prometheus.MustRegister(postingsIngestedTotalMetric)
	prometheus.MustRegister(notificationsQueuedTotalMetric)
	prometheus.MustRegister(interviewExpirationsTotalMetric)
}
