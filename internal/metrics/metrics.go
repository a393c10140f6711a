package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's collectors. A nil *Metrics is valid and
// records nothing, so components can be built without observability in tests.
type Metrics struct {
	registry *prometheus.Registry

	ResponsesRecorded    *prometheus.CounterVec
	DuplicateResponses   prometheus.Counter
	RequestsCreated      prometheus.Counter
	RequestsClosed       *prometheus.CounterVec
	DonationsCompleted   prometheus.Counter
	PointsAwarded        *prometheus.CounterVec
	BadgesAwarded        *prometheus.CounterVec
	WithdrawalsProcessed *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
}

// New creates a registry with Go and process collectors plus all
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ResponsesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roktodan_donor_responses_total",
			Help: "Donor responses recorded, by response value",
		}, []string{"response"}),
		DuplicateResponses: f.NewCounter(prometheus.CounterOpts{
			Name: "roktodan_duplicate_responses_total",
			Help: "Response attempts rejected because the donor had already responded",
		}),
		RequestsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "roktodan_blood_requests_created_total",
			Help: "Blood requests created",
		}),
		RequestsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roktodan_blood_requests_closed_total",
			Help: "Blood requests moved to a terminal status, by status",
		}, []string{"status"}),
		DonationsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "roktodan_donations_completed_total",
			Help: "Donations marked completed",
		}),
		PointsAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roktodan_points_awarded_total",
			Help: "Points credited to donors, by transaction type",
		}, []string{"type"}),
		BadgesAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roktodan_badges_awarded_total",
			Help: "Badges awarded, by badge type",
		}, []string{"badge"}),
		WithdrawalsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roktodan_withdrawals_total",
			Help: "Withdrawal requests entering a status",
		}, []string{"status"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roktodan_notification_failures_total",
			Help: "Notification deliveries that failed, by channel",
		}, []string{"channel"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "roktodan_sweep_duration_seconds",
			Help:    "Duration of periodic maintenance sweeps",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncResponse(response string) {
	if m == nil {
		return
	}
	m.ResponsesRecorded.WithLabelValues(response).Inc()
}

func (m *Metrics) IncDuplicateResponse() {
	if m == nil {
		return
	}
	m.DuplicateResponses.Inc()
}

func (m *Metrics) IncRequestCreated() {
	if m == nil {
		return
	}
	m.RequestsCreated.Inc()
}

func (m *Metrics) IncRequestClosed(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RequestsClosed.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) IncDonationCompleted() {
	if m == nil {
		return
	}
	m.DonationsCompleted.Inc()
}

func (m *Metrics) AddPoints(txType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PointsAwarded.WithLabelValues(txType).Add(float64(n))
}

func (m *Metrics) IncBadge(badge string) {
	if m == nil {
		return
	}
	m.BadgesAwarded.WithLabelValues(badge).Inc()
}

func (m *Metrics) IncWithdrawal(status string) {
	if m == nil {
		return
	}
	m.WithdrawalsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) IncNotificationFailure(channel string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(channel).Inc()
}

// ObserveSweep records a sweep's duration. Call with time.Now() at the start.
func (m *Metrics) ObserveSweep(start time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
}
