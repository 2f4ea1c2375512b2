package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/newgrp/lockbox/clock"
	"github.com/newgrp/lockbox/lockstats"
	"github.com/newgrp/lockbox/server"
)

// Configuration, read from NTSCLOCK_* environment variables.
type config struct {
	NTSServers []string `envconfig:"NTS_SERVERS" required:"true"`
	// Defaults to ":80", or ":443" when TLS is enabled.
	Address  string `envconfig:"ADDRESS"`
	CertFile string `envconfig:"CERT_FILE"`
	KeyFile  string `envconfig:"KEY_FILE"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON"`
	// Instance ID reported in responses. Random if unset.
	InstanceID string `envconfig:"INSTANCE_ID"`

	PollPeriod  time.Duration `envconfig:"POLL_PERIOD" default:"1h"`
	RetryPeriod time.Duration `envconfig:"RETRY_PERIOD" default:"5m"`
}

// TLS is enabled if and only if both the cert and key files are given.
func (c *config) tls() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Server address is inferred as follows:
//
//   - if the environment provides a custom address, use that
//   - if TLS is enabled, use ":443"
//   - otherwise, use ":80"
func (c *config) address() string {
	switch {
	case c.Address != "":
		return c.Address
	case c.tls():
		return ":443"
	default:
		return ":80"
	}
}

func main() {
	var cfg config
	if err := envconfig.Process("ntsclock", &cfg); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	logrus.SetLevel(level)
	if cfg.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	id := uuid.Nil
	if cfg.InstanceID != "" {
		if id, err = uuid.Parse(cfg.InstanceID); err != nil {
			logrus.WithError(err).Fatal("Invalid instance ID")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	secureClock, err := clock.New(ctx, clock.Options{
		Servers:     cfg.NTSServers,
		Metrics:     lockstats.NewMetrics(reg),
		PollPeriod:  cfg.PollPeriod,
		RetryPeriod: cfg.RetryPeriod,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start secure clock")
	}

	srv, err := server.NewServer(server.Options{Clock: secureClock, ID: id, Gatherer: reg})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}
	logrus.WithField("instance", srv.ID().String()).Info("Server dependencies initialized")

	mux := http.NewServeMux()
	srv.RegisterHandlers(mux)
	httpServer := &http.Server{Addr: cfg.address(), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
		}
	}()

	log := logrus.WithFields(logrus.Fields{"address": httpServer.Addr, "tls": cfg.tls()})
	if cfg.tls() {
		log.Info("Running HTTPS server")
		err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		log.Info("Running HTTP server")
		err = httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("HTTP server failed")
	}
}
