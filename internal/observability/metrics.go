// Package observability holds the Prometheus collector and OpenTelemetry
// setup shared by the simulator binaries.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Collector bundles the simulator's Prometheus metrics. It satisfies
// core.TowerMetrics and core.CoordinatorMetrics, and every recorder method
// is safe on a nil receiver.
type Collector struct {
	gatherer prometheus.Gatherer

	MessagesEnqueued  prometheus.Counter
	MessagesRejected  prometheus.Counter
	MessagesDelivered prometheus.Counter
	MessagesDropped   prometheus.Counter
	OverheadFailures  prometheus.Counter
	QueueDepth        prometheus.Gauge
	BatchDuration     prometheus.Histogram

	DeviceAttach  *prometheus.CounterVec
	DeviceDetach  *prometheus.CounterVec
	TowerAttached *prometheus.GaugeVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewCollector registers the simulator metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.MessagesEnqueued, "cellsim_messages_enqueued_total", "Messages accepted into a coordinator queue."},
		{&c.MessagesRejected, "cellsim_messages_rejected_total", "Messages rejected because the queue was full."},
		{&c.MessagesDelivered, "cellsim_messages_delivered_total", "Messages routed to a registered tower."},
		{&c.MessagesDropped, "cellsim_messages_dropped_total", "Messages dropped because their tower was not registered."},
		{&c.OverheadFailures, "cellsim_overhead_failures_total", "Delivered messages whose overhead estimate failed."},
	}
	for _, def := range counters {
		*def.dst, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: def.name, Help: def.help}), def.name)
		if err != nil {
			return nil, err
		}
	}

	c.QueueDepth, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cellsim_queue_depth",
		Help: "Messages currently waiting in the coordinator queue.",
	}), "cellsim_queue_depth")
	if err != nil {
		return nil, err
	}

	c.BatchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cellsim_process_batch_duration_seconds",
		Help:    "Time spent routing one drained batch of messages.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "cellsim_process_batch_duration_seconds")
	if err != nil {
		return nil, err
	}

	c.DeviceAttach, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cellsim_device_attach_total",
		Help: "Device attach attempts, labeled by result.",
	}, []string{"result"}), "cellsim_device_attach_total")
	if err != nil {
		return nil, err
	}

	c.DeviceDetach, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cellsim_device_detach_total",
		Help: "Device detach attempts, labeled by result.",
	}, []string{"result"}), "cellsim_device_detach_total")
	if err != nil {
		return nil, err
	}

	c.TowerAttached, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cellsim_tower_attached_devices",
		Help: "Devices currently attached, per tower.",
	}, []string{"tower"}), "cellsim_tower_attached_devices")
	if err != nil {
		return nil, err
	}

	c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cellsim_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "cellsim_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cellsim_rpc_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "cellsim_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the gatherer the collector was registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

func (c *Collector) ObserveAttach(towerID int, result string) {
	if c == nil || c.DeviceAttach == nil {
		return
	}
	c.DeviceAttach.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveDetach(towerID int, result string) {
	if c == nil || c.DeviceDetach == nil {
		return
	}
	c.DeviceDetach.WithLabelValues(result).Inc()
}

func (c *Collector) SetAttachedDevices(towerID int, n int) {
	if c == nil || c.TowerAttached == nil {
		return
	}
	c.TowerAttached.WithLabelValues(strconv.Itoa(towerID)).Set(float64(n))
}

func (c *Collector) ObserveEnqueue(accepted bool) {
	if c == nil {
		return
	}
	if accepted {
		if c.MessagesEnqueued != nil {
			c.MessagesEnqueued.Inc()
		}
		return
	}
	if c.MessagesRejected != nil {
		c.MessagesRejected.Inc()
	}
}

// ObserveBatch records the outcome of one ProcessMessages pass.
func (c *Collector) ObserveBatch(delivered, dropped, overheadFailures int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.MessagesDelivered != nil {
		c.MessagesDelivered.Add(float64(delivered))
	}
	if c.MessagesDropped != nil {
		c.MessagesDropped.Add(float64(dropped))
	}
	if c.OverheadFailures != nil {
		c.OverheadFailures.Add(float64(overheadFailures))
	}
	if c.BatchDuration != nil {
		c.BatchDuration.Observe(elapsed.Seconds())
	}
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.Set(float64(n))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and
// method components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(fullMethod, "/")
	if !ok || strings.Contains(method, "/") {
		// Tolerate extra leading segments, keep the last two.
		parts := strings.Split(fullMethod, "/")
		if len(parts) < 2 {
			return "unknown", "unknown"
		}
		service, method = parts[len(parts)-2], parts[len(parts)-1]
	}
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
