// Command librefollow follows a glucose sensor and serves the current state.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/st-keller/librefollow"
	"github.com/st-keller/librefollow/config"
	"github.com/st-keller/librefollow/diag"
	"github.com/st-keller/librefollow/display"
	"github.com/st-keller/librefollow/metrics"
	"github.com/st-keller/librefollow/registry"
	"github.com/st-keller/librefollow/sink"
	"github.com/st-keller/librefollow/status"
	"github.com/st-keller/librefollow/transport"
	"github.com/st-keller/librefollow/types"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "librefollow:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to YAML config file")
	serverURL := flag.String("server", "", "glucose server base URL (overrides config)")
	mmol := flag.Bool("mmol", false, "show values in mmol/L (overrides config)")
	statusAddr := flag.String("status-addr", "", "status server listen address (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *mmol {
		cfg.Server.Unit = "mmol"
	}
	if *statusAddr != "" {
		cfg.Status.Addr = *statusAddr
	}

	// Logging
	level, _ := cfg.LogLevel()
	var console slog.Handler
	if cfg.Log.Format == "json" {
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		console = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logs := diag.NewRecentLogs(console, cfg.Log.Recent)
	logger := slog.New(logs).With("service", "librefollow")
	slog.SetDefault(logger)

	// Upstream transport
	timeout, _ := cfg.RequestTimeout()
	mode, _ := transport.ParseMode(cfg.Transport.Mode)
	httpClient, err := transport.BuildClient(transport.Options{
		Mode:     mode,
		Timeout:  timeout,
		CertPath: cfg.Transport.CertPath,
		KeyPath:  cfg.Transport.KeyPath,
		CAPath:   cfg.Transport.CAPath,
	})
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	certs := diag.NewCertificateMonitor(cfg.Transport.CertPath, cfg.Transport.CAPath)
	if !certs.Empty() {
		if err := certs.Scan(); err != nil {
			logger.Warn("certificate_scan_failed", "error", err)
		}
		for _, c := range certs.Expiring() {
			logger.Warn("certificate_expiring",
				"purpose", c.Purpose,
				"path", c.Path,
				"days_until_expiry", c.DaysUntilExpiry,
				"expired", c.IsExpired)
		}
	}

	formatter, err := display.NewFormatter(cfg.Display.TimeLayout, cfg.Display.TimeZone, cfg.Display.Language)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	connectivity := diag.NewConnectivityTracker()

	client, err := librefollow.New(librefollow.Config{
		HTTPClient:   httpClient,
		Logger:       logger,
		Formatter:    formatter,
		Metrics:      metrics.New(reg),
		Connectivity: connectivity,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Status server
	var statusServer *status.Server
	if cfg.Status.Addr != "" {
		info := diag.AutoDetect("librefollow", version)
		info.ServerURL = cfg.Server.URL
		info.Unit = cfg.Unit().String()
		info.StatusAddr = cfg.Status.Addr

		var accessLog io.Writer
		if cfg.Status.AccessLog {
			accessLog = os.Stdout
		}
		statusServer = status.NewServer(cfg.Status.Addr, status.Options{
			State:        client,
			Gatherer:     reg,
			Connectivity: connectivity,
			Logs:         logs,
			Info:         info,
			Certificates: certs,
		}, accessLog, logger)
		if err := statusServer.Start(); err != nil {
			return err
		}
	}

	// Sinks
	sinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	forwarded := make(chan struct{})
	if len(sinks.Names()) > 0 {
		updates, unsubscribe := client.Subscribe()
		defer unsubscribe()
		go func() {
			defer close(forwarded)
			sinks.Forward(ctx, updates, logger)
		}()
	} else {
		close(forwarded)
	}

	if err := client.Start(librefollow.Session{
		ServerURL: cfg.Server.URL,
		UseMmol:   cfg.Unit() == types.MmolPerL,
	}); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown_requested")

	client.Stop()
	<-forwarded
	if err := sinks.Close(); err != nil {
		logger.Warn("sink_close_failed", "error", err)
	}
	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status_server_shutdown_failed", "error", err)
		}
	}
	return nil
}

// buildSinks registers the configured MQTT and Kafka sinks.
func buildSinks(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New(clockwork.NewRealClock())

	if cfg.MQTT.Broker != "" {
		m, err := sink.NewMQTT(sink.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
			Retained: cfg.MQTT.Retained,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register("mqtt", m); err != nil {
			return nil, err
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		if err := reg.Register("kafka", k); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
