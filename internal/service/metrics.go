package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded in productFetchTotal.
const (
	outcomeSuccess     = "success"
	outcomeNotFound    = "not_found"
	outcomeUnavailable = "unavailable"
	outcomeCancelled   = "cancelled"
	outcomeStale       = "stale"
)

var (
	productFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_product_fetch_total",
			Help: "Product fetches by outcome",
		},
		[]string{"outcome"},
	)

	productFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_product_fetch_duration_seconds",
			Help:    "Time from mount until the product fetch settled",
			Buckets: prometheus.DefBuckets,
		},
	)

	fetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_product_fetches_in_flight",
			Help: "Product fetches currently running",
		},
	)

	quantityChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_quantity_changes_total",
			Help: "Quantity stepper actions by action and whether they changed the quantity",
		},
		[]string{"action", "changed"},
	)
)
