// Package metrics defines the Prometheus collectors for the media library.
//
// Collectors are registered at init time via promauto and exposed by the
// /metrics endpoint in main.
package metrics
