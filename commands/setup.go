package commands

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	logging "github.com/ipfs/go-log/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opencensus.io/stats/view"
	octrace "go.opencensus.io/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/bridge/opencensus"

	"github.com/subscription-escrow/escrowdex/config"
	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/version"
)

var log = logging.Logger("escrowdex/commands")

type LogOpts struct {
	LogLevel      string
	LogLevelNamed string
}

var LogFlags LogOpts

type TracingOpts struct {
	Enabled            bool
	ServiceName        string
	ProviderURL        string
	JaegerSamplerParam float64
}

var TracingFlags TracingOpts

type MetricOpts struct {
	PrometheusPort string
}

var MetricFlags MetricOpts

type ConfigOpts struct {
	Path string
}

var ConfigFlags ConfigOpts

func setupLogging(flags LogOpts) error {
	ll := flags.LogLevel
	if ll == "" {
		ll = "info"
	}
	if err := logging.SetLogLevel("*", ll); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}

	llnamed := flags.LogLevelNamed
	if llnamed != "" {
		for _, llname := range strings.Split(llnamed, ",") {
			parts := strings.Split(llname, ":")
			if len(parts) != 2 {
				return fmt.Errorf("invalid named log level format: %q", llname)
			}
			if err := logging.SetLogLevel(parts[0], parts[1]); err != nil {
				return fmt.Errorf("set named log level %q to %q: %w", parts[0], parts[1], err)
			}

		}
	}

	log.Infof("escrowdex version:%s", version.String())

	return nil
}

// loadConfig reads the config file named by the --config flag, falling back to defaults when no path is given.
func loadConfig() (*config.Conf, error) {
	if ConfigFlags.Path == "" {
		return config.DefaultConf(), nil
	}
	cfg, err := config.FromFile(ConfigFlags.Path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", ConfigFlags.Path, err)
	}
	return cfg, nil
}

func setupMetrics(flags MetricOpts, cfg config.MetricsConf) error {
	addr := flags.PrometheusPort
	if addr == "" {
		addr = cfg.ListenAddress
	}
	if addr == "" {
		log.Info("metrics disabled, no listen address configured")
		return nil
	}

	// setup Prometheus
	registry := prom.NewRegistry()
	goCollector := collectors.NewGoCollector()
	procCollector := collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "escrowdex",
		Registry:  registry,
	})
	if err != nil {
		return err
	}

	registry.MustRegister(goCollector, procCollector)

	// register prometheus with opencensus
	view.RegisterExporter(pe)
	view.SetReportingPeriod(2 * time.Second)

	// register the metrics views of interest
	if err := view.Register(metrics.DefaultViews...); err != nil {
		return err
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", pe)
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.Handle("/debug/pprof/block", pprof.Handler("block"))
		mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		mux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
		mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
		log.Infof("serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("Failed to run Prometheus /metrics endpoint: %v", err)
		}
	}()
	return nil
}

func setupTracing(flags TracingOpts, cfg config.TracingConf) error {
	if flags.Enabled {
		cfg.Enabled = true
	}
	if !cfg.Enabled {
		return nil
	}
	if flags.ServiceName != "" {
		cfg.ServiceName = flags.ServiceName
	}
	if flags.ProviderURL != "" {
		cfg.JaegerEndpoint = flags.ProviderURL
	}
	if flags.JaegerSamplerParam > 0 {
		cfg.SampleRatio = flags.JaegerSamplerParam
	}

	tp, err := metrics.NewJaegerTraceProvider(cfg.ServiceName, cfg.JaegerEndpoint, cfg.SampleRatio)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	otel.SetTracerProvider(tp)
	// libraries instrumented with OpenCensus report through the same provider.
	tracer := tp.Tracer(cfg.ServiceName)
	octrace.DefaultTracer = opencensus.NewTracer(tracer)

	return nil
}

// setupAll configures logging, metrics and tracing and returns the loaded config.
func setupAll() (*config.Conf, error) {
	if err := setupLogging(LogFlags); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := setupMetrics(MetricFlags, cfg.Metrics); err != nil {
		return nil, fmt.Errorf("setup metrics: %w", err)
	}
	if err := setupTracing(TracingFlags, cfg.Tracing); err != nil {
		return nil, err
	}
	return cfg, nil
}
