package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Intercepted       prometheus.Counter
	Outcomes          *prometheus.CounterVec
	RuleMatches       *prometheus.CounterVec
	SpamChecks        prometheus.Counter
	SpamCheckFailures prometheus.Counter
	DeliverySuccesses prometheus.Counter
	DeliveryFailures  prometheus.Counter
	ReportsPurged     prometheus.Counter
	ProcessingTime    prometheus.Histogram
	ActiveRules       prometheus.Gauge
	TotalRules        prometheus.Gauge
}

// NewMetrics creates Prometheus metrics registered with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Intercepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_router_intercepted_total",
			Help: "Total number of outgoing emails intercepted",
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_mail_router_outcomes_total",
			Help: "Intercepted emails by final outcome",
		}, []string{"outcome"}),
		RuleMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_mail_router_rule_matches_total",
			Help: "Rule resolutions by kind of rule matched: custom, default or none",
		}, []string{"kind"}),
		SpamChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_router_spam_checks_total",
			Help: "Total number of spam API checks performed",
		}),
		SpamCheckFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_router_spam_check_failures_total",
			Help: "Spam API checks that failed and were treated as not spam",
		}),
		DeliverySuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_router_delivery_successes_total",
			Help: "Total number of successful SMTP deliveries",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_router_delivery_failures_total",
			Help: "Total number of failed SMTP deliveries",
		}),
		ReportsPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_router_reports_purged_total",
			Help: "Reports deleted by the retention job",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_mail_router_processing_duration_seconds",
			Help:    "Time spent intercepting emails",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveRules: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smart_mail_router_active_rules",
			Help: "Number of currently enabled routing rules",
		}),
		TotalRules: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smart_mail_router_total_rules",
			Help: "Total number of routing rules (enabled and disabled)",
		}),
	}
}
