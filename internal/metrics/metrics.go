package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_saga_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_saga_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	sagaOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_saga_operations_total",
			Help: "Total number of saga operations",
		},
		[]string{"operation", "status"},
	)

	refundFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_saga_refund_failures_total",
			Help: "Refunds that failed and need an operator",
		},
	)

	inventoryReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Inventory reservation attempts by result",
		},
		[]string{"result"},
	)

	paymentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_saga_payment_results_total",
			Help: "Payment intents resolved by final status",
		},
		[]string{"status"},
	)
)

// Middleware records request count and latency by route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func RecordOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	sagaOperations.WithLabelValues(operation, status).Inc()
}

func RecordRefundFailure() {
	refundFailures.Inc()
}

// RecordReservation takes one of "reserved", "insufficient", "error".
func RecordReservation(result string) {
	inventoryReservations.WithLabelValues(result).Inc()
}

func RecordPaymentResult(status string) {
	paymentResults.WithLabelValues(status).Inc()
}
