package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoiceReconcileTotal counts line-item reconciliation outcomes by phase.
	InvoiceReconcileTotal *prometheus.CounterVec
	// InvoiceReconcileOps records how many delete/update/insert operations a
	// single reconciliation applied.
	InvoiceReconcileOps *prometheus.HistogramVec
	// PaymentRecordedTotal counts payments recorded against invoices.
	PaymentRecordedTotal *prometheus.CounterVec
	// ReminderDispatchTotal counts overdue-invoice reminder outcomes.
	ReminderDispatchTotal *prometheus.CounterVec
	// ReminderScanDuration records how long a reminder scan pass took.
	ReminderScanDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoiceReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_reconcile_total",
			Help:      "Count of invoice line-item reconciliation outcomes.",
		}, []string{"result", "phase"})
		InvoiceReconcileOps = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_reconcile_ops",
			Help:      "Number of storage operations applied per reconciliation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}, []string{"op"})
		PaymentRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_recorded_total",
			Help:      "Count of payments recorded by method.",
		}, []string{"method"})
		ReminderDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_dispatch_total",
			Help:      "Count of overdue-invoice reminder dispatch outcomes.",
		}, []string{"result"})
		ReminderScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_scan_duration_ms",
			Help:      "Duration of overdue-invoice reminder scan passes in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		})

		mustRegisterCollector(reg, InvoiceReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoiceReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceReconcileOps, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				InvoiceReconcileOps = v
			}
		})
		mustRegisterCollector(reg, PaymentRecordedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentRecordedTotal = v
			}
		})
		mustRegisterCollector(reg, ReminderDispatchTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReminderDispatchTotal = v
			}
		})
		mustRegisterCollector(reg, ReminderScanDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReminderScanDuration = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
