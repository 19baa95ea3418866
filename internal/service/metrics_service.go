package service

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the booking/ledger domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	bookingsCreated   prometheus.Counter
	bookingsCancelled *prometheus.CounterVec
	creditsConsumed   prometheus.Counter
	creditsExpired    prometheus.Counter
	remindersEnqueued prometheus.Counter
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bookingsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total bookings created",
	})

	bookingsCancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total bookings cancelled",
	}, []string{"late"})

	creditsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_consumed_total",
		Help: "Total credits consumed by attendance and penalties",
	})

	creditsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_expired_total",
		Help: "Total credits voided by the expiration sweep",
	})

	remindersEnqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_enqueued_total",
		Help: "Total reminder deliveries enqueued",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, bookingsCreated, bookingsCancelled,
		creditsConsumed, creditsExpired, remindersEnqueued, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		bookingsCreated:   bookingsCreated,
		bookingsCancelled: bookingsCancelled,
		creditsConsumed:   creditsConsumed,
		creditsExpired:    creditsExpired,
		remindersEnqueued: remindersEnqueued,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// RecordHTTPRequest observes one handled request.
func (s *MetricsService) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	s.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBookingCreated counts a new booking.
func (s *MetricsService) RecordBookingCreated() {
	s.bookingsCreated.Inc()
}

// RecordBookingCancelled counts a cancellation.
func (s *MetricsService) RecordBookingCancelled(late bool) {
	label := "false"
	if late {
		label = "true"
	}
	s.bookingsCancelled.WithLabelValues(label).Inc()
}

// RecordCreditsConsumed counts credits removed from balances.
func (s *MetricsService) RecordCreditsConsumed(n int) {
	s.creditsConsumed.Add(float64(n))
}

// RecordCreditsExpired counts credits voided by the sweep.
func (s *MetricsService) RecordCreditsExpired(n int) {
	s.creditsExpired.Add(float64(n))
}

// RecordReminderEnqueued counts a reminder handed to the queue.
func (s *MetricsService) RecordReminderEnqueued() {
	s.remindersEnqueued.Inc()
}
