package softcam

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.jpl.nasa.gov/bdube/softgev/generichttp"
)

var (
	capturedDesc  = prometheus.NewDesc("softgev_frames_captured_total", "frames filled by the generator", []string{"channel"}, nil)
	deliveredDesc = prometheus.NewDesc("softgev_frames_delivered_total", "frames handed to the streaming driver", []string{"channel"}, nil)
	droppedDesc   = prometheus.NewDesc("softgev_frames_dropped_total", "frames dropped for want of a queued buffer", []string{"channel"}, nil)
	skippedDesc   = prometheus.NewDesc("softgev_frames_skipped_total", "frames replaced in the mailbox before a reader saw them", []string{"channel"}, nil)
	errorsDesc    = prometheus.NewDesc("softgev_driver_errors_total", "non transient driver errors", []string{"channel"}, nil)
	acquiringDesc = prometheus.NewDesc("softgev_acquiring", "1 while the channel is acquiring", []string{"channel"}, nil)
)

// Collector exports the counters of every channel of a camera
type Collector struct {
	cam HTTPCamera
}

// NewCollector returns a prometheus collector over the camera's channels
func NewCollector(h HTTPCamera) *Collector {
	return &Collector{cam: h}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- capturedDesc
	ch <- deliveredDesc
	ch <- droppedDesc
	ch <- skippedDesc
	ch <- errorsDesc
	ch <- acquiringDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.cam.ChannelStats() {
		id := strconv.Itoa(s.Channel)
		acq := 0.
		if s.Acquiring {
			acq = 1
		}
		ch <- prometheus.MustNewConstMetric(capturedDesc, prometheus.CounterValue, float64(s.Source.Captured), id)
		ch <- prometheus.MustNewConstMetric(deliveredDesc, prometheus.CounterValue, float64(s.Source.Delivered), id)
		ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(s.Source.Dropped), id)
		ch <- prometheus.MustNewConstMetric(skippedDesc, prometheus.CounterValue, float64(s.Mailbox.Dropped), id)
		ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.Errors), id)
		ch <- prometheus.MustNewConstMetric(acquiringDesc, prometheus.GaugeValue, acq, id)
	}
}

// InjectMetrics registers a collector for the camera with reg and adds a
// GET /metrics route serving reg to the camera's route table
func (h HTTPCamera) InjectMetrics(reg *prometheus.Registry) error {
	if err := reg.Register(NewCollector(h)); err != nil {
		return err
	}
	h.RouteTable[generichttp.MethodPath{Method: http.MethodGet, Path: "/metrics"}] =
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP
	return nil
}
