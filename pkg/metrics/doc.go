// Package metrics exposes Prometheus counters for the DNS, directory, and
// API subsystems, served on the API's /metrics endpoint.
package metrics
