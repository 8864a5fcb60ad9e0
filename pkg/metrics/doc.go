// Package metrics owns the Prometheus collectors of the notification service.
//
// Collectors are registered on the default registry at init through promauto;
// callers only use the small recording helpers, so label sets stay consistent.
package metrics
