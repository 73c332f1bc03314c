package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DNS metrics
	DNSQueriesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsys_dns_queries_sent_total",
			Help: "Total number of DNS messages transmitted by transport",
		},
		[]string{"transport"},
	)

	DNSRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "confsys_dns_retries_total",
			Help: "Total number of UDP retransmissions",
		},
	)

	ServicesPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "confsys_services_published_total",
			Help: "Total number of DNS-SD publish operations",
		},
	)

	// Directory metrics
	DirectoryCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "confsys_directory_commits_total",
			Help: "Total number of committed write transactions",
		},
	)

	DirectoryAborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "confsys_directory_aborts_total",
			Help: "Total number of aborted write transactions",
		},
	)

	// Validation metrics
	DocumentsValidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsys_documents_validated_total",
			Help: "Total number of validated documents by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confsys_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(DNSQueriesSent)
	prometheus.MustRegister(DNSRetries)
	prometheus.MustRegister(ServicesPublished)
	prometheus.MustRegister(DirectoryCommits)
	prometheus.MustRegister(DirectoryAborts)
	prometheus.MustRegister(DocumentsValidated)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
