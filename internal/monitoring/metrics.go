package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 报修提交结果
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeRejected      = "rejected"
	OutcomeDispatchError = "dispatch_error"
	OutcomeStorageError  = "storage_error"
)

// Metrics 监控指标
//
// 所有方法都允许在 nil 接收者上调用，未启用监控时直接跳过。
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec

	// 报修指标
	SubmissionsTotal *prometheus.CounterVec

	// 上传指标
	AttachmentsAccepted prometheus.Counter
	AttachmentsRejected *prometheus.CounterVec
	AttachmentSize      prometheus.Histogram
	UploadsReleased     prometheus.Counter
	UploadsInFlight     prometheus.Gauge
	ReleaseFailures     prometheus.Counter

	// 邮件指标
	MailDispatchDuration *prometheus.HistogramVec

	// 清理任务指标
	SweepRuns         prometheus.Counter
	SweepDeleted      prometheus.Counter
	SweepFailures     prometheus.Counter
	UploadDirFiles    prometheus.Gauge
	UploadDirBytes    prometheus.Gauge
	LastSweepUnixTime prometheus.Gauge

	// 系统指标
	SystemUptime prometheus.Gauge
	PanicsTotal  prometheus.Counter
}

// NewMetrics 创建监控指标，注册到独立的 registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		started:  time.Now(),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repairdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repairdesk_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"method", "endpoint"},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairdesk_submissions_total",
				Help: "Repair submissions by outcome",
			},
			[]string{"outcome"},
		),

		AttachmentsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_attachments_accepted_total",
			Help: "Images written to the upload directory",
		}),

		AttachmentsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairdesk_attachments_rejected_total",
				Help: "Image batches rejected by reason",
			},
			[]string{"reason"},
		),

		AttachmentSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "repairdesk_attachment_size_bytes",
			Help:    "Size of accepted images",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),

		UploadsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_uploads_released_total",
			Help: "Images removed after their request finished",
		}),

		UploadsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_uploads_in_flight",
			Help: "Images accepted but not yet released",
		}),

		ReleaseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_upload_release_failures_total",
			Help: "Images that could not be removed on release",
		}),

		MailDispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repairdesk_mail_dispatch_duration_seconds",
				Help:    "Time spent handing a message to the mail transport",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"driver", "result"},
		),

		SweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_sweep_runs_total",
			Help: "Retention sweeps executed",
		}),

		SweepDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_sweep_deleted_total",
			Help: "Expired images deleted by the retention sweep",
		}),

		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_sweep_failures_total",
			Help: "Retention sweeps that reported errors",
		}),

		UploadDirFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_upload_dir_files",
			Help: "Files currently in the upload directory",
		}),

		UploadDirBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_upload_dir_bytes",
			Help: "Bytes currently in the upload directory",
		}),

		LastSweepUnixTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_last_sweep_timestamp_seconds",
			Help: "Unix time of the last retention sweep",
		}),

		SystemUptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_system_uptime_seconds",
			Help: "System uptime in seconds",
		}),

		PanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_panics_total",
			Help: "Total number of recovered panics",
		}),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if requestSize > 0 {
		m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	}
}

// RecordSubmission 记录一次报修提交结果
func (m *Metrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordAttachmentAccepted 记录一张已落盘的图片
func (m *Metrics) RecordAttachmentAccepted(size int64) {
	if m == nil {
		return
	}
	m.AttachmentsAccepted.Inc()
	m.AttachmentSize.Observe(float64(size))
	m.UploadsInFlight.Inc()
}

// RecordAttachmentRejected 记录一批被拒绝的图片
func (m *Metrics) RecordAttachmentRejected(reason string) {
	if m == nil {
		return
	}
	m.AttachmentsRejected.WithLabelValues(reason).Inc()
}

// RecordRelease 记录释放结果
func (m *Metrics) RecordRelease(released, failed int) {
	if m == nil {
		return
	}
	m.UploadsReleased.Add(float64(released))
	m.ReleaseFailures.Add(float64(failed))
	m.UploadsInFlight.Sub(float64(released + failed))
}

// RecordDispatch 记录邮件发送耗时
func (m *Metrics) RecordDispatch(driver string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MailDispatchDuration.WithLabelValues(driver, result).Observe(duration.Seconds())
}

// RecordSweep 记录一次清理任务
func (m *Metrics) RecordSweep(deleted int, err error, at time.Time) {
	if m == nil {
		return
	}
	m.SweepRuns.Inc()
	m.SweepDeleted.Add(float64(deleted))
	if err != nil {
		m.SweepFailures.Inc()
	}
	m.LastSweepUnixTime.Set(float64(at.Unix()))
}

// UpdateUploadDir 更新上传目录占用
func (m *Metrics) UpdateUploadDir(files int, bytes int64) {
	if m == nil {
		return
	}
	m.UploadDirFiles.Set(float64(files))
	m.UploadDirBytes.Set(float64(bytes))
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// UpdateSystemUptime 更新运行时长
func (m *Metrics) UpdateSystemUptime() {
	if m == nil {
		return
	}
	m.SystemUptime.Set(time.Since(m.started).Seconds())
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
