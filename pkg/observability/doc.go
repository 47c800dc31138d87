// Package observability provides structured logging and Prometheus
// metrics for the login service.
package observability
