package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var durationBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000,
	3000, 5000, 7500, 10000, 15000,
	30000, 60000,
}

// Prometheus collects per-request HTTP metrics and serves them on a
// dedicated listener, keeping /metrics off the public API port.
type Prometheus struct {
	reqCnt     *prometheus.CounterVec
	reqDur     *prometheus.HistogramVec
	registry   *prometheus.Registry
	listenAddr string
	urlLabelFn func(c *gin.Context) string
	log        *zap.SugaredLogger
}

type NewPrometheusOptions struct {
	Subsystem string
	// ReqCntURLLabelMappingFn controls cardinality of the "url" label;
	// defaults to the matched route template.
	ReqCntURLLabelMappingFn func(c *gin.Context) string
	Logger                  *zap.SugaredLogger
}

func NewPrometheus(opts NewPrometheusOptions) *Prometheus {
	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "http"
	}
	urlFn := opts.ReqCntURLLabelMappingFn
	if urlFn == nil {
		urlFn = func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		}
	}

	p := &Prometheus{
		reqCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "req_total",
			Help:      "How many HTTP requests processed, partitioned by status code, method and route.",
		}, []string{"code", "method", "url"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "req_dur_ms",
			Help:      "The HTTP request latencies in milliseconds.",
			Buckets:   durationBuckets,
		}, []string{"code", "method", "url"}),
		registry:   prometheus.NewRegistry(),
		urlLabelFn: urlFn,
		log:        opts.Logger,
	}
	p.registry.MustRegister(p.reqCnt, p.reqDur)
	return p
}

// SetListenAddress configures the dedicated metrics listener address.
func (p *Prometheus) SetListenAddress(addr string) {
	p.listenAddr = addr
}

// Use attaches the middleware to the engine and, when a listen address is
// set, starts the metrics endpoint.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.handlerFunc())
	if p.listenAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(p.listenAddr, mux); err != nil && p.log != nil {
			p.log.Errorf("metrics listener error: %v", err)
		}
	}()
}

func (p *Prometheus) handlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code := strconv.Itoa(c.Writer.Status())
		url := p.urlLabelFn(c)
		p.reqCnt.WithLabelValues(code, c.Request.Method, url).Inc()
		p.reqDur.WithLabelValues(code, c.Request.Method, url).
			Observe(float64(time.Since(start).Milliseconds()))
	}
}
