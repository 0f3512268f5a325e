// Package metrics declares the Prometheus metrics imgview exports.
//
// Metrics are registered at package init through promauto, so importing
// the package is enough to have them on the default registry. The
// Collector samples slow-moving gauges (store size, resident decodes) on an
// interval; everything else is updated inline by the scheduler, loader and
// thumbnail store.
package metrics
