package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainhub", Name: "http_requests_total", Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trainhub", Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	OptInResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainhub", Name: "optin_total", Help: "Opt-in attempts by result",
	}, []string{"result"})
	AttendanceMarks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainhub", Name: "attendance_marks_total", Help: "Attendance entries processed by result",
	}, []string{"result"})
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainhub", Name: "job_runs_total", Help: "Background job runs",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainhub", Name: "job_errors_total", Help: "Background job failures",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trainhub", Name: "job_duration_seconds", Help: "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, OptInResults, AttendanceMarks, JobRuns, JobErrors, JobDuration)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveHTTP(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func ObserveJob(job string, err error, d time.Duration) {
	JobRuns.WithLabelValues(job).Inc()
	if err != nil {
		JobErrors.WithLabelValues(job).Inc()
	}
	JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
