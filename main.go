package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/tsl2561-meter/internal/config"
	"github.com/ztkent/tsl2561-meter/internal/lightmeter"
	"github.com/ztkent/tsl2561-meter/internal/tools"
	"github.com/ztkent/tsl2561-meter/tsl2561"
)

/*
	This is the entry point for the Light Meter application.
	It should be running at startup, on a Raspberry Pi, with the TSL2561 sensor connected.
*/

func main() {
	configPath := flag.String("config", "", "optional KEY=VALUE config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	l, err := tools.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logrus.Fatalf("Failed to setup logging: %v", err)
	}
	tsl2561.SetLogger(l)

	pid := os.Getpid()
	l.WithField("pid", pid).Info("LightMeter starting")

	// connect to the lux sensor
	device, err := openSensor(cfg)
	if err != nil {
		l.Fatalf("Failed to connect to the TSL2561 sensor: %v", err)
	}
	defer device.Close()
	if err := device.Start(); err != nil {
		l.Fatalf("Failed to start the TSL2561 sensor: %v", err)
	}
	if err := device.Init(cfg.SensorGain, cfg.SensorTiming, cfg.SensorPackage); err != nil {
		l.Fatalf("Failed to configure the TSL2561 sensor: %v", err)
	}

	// connect to the sqlite database
	db, err := tools.ConnectSqlite(cfg.DBPath, l)
	if err != nil {
		// Unlike connecting to the sensor, this should always work.
		l.Fatalf("Failed to connect to the sqlite database: %v", err)
	}
	defer db.Close()

	meter := lightmeter.New(device, db, cfg, l)
	meter.Pid = pid
	if cfg.MQTTBroker != "" {
		publisher, err := lightmeter.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			// Readings are still recorded locally
			l.WithError(err).Error("Failed to connect to the MQTT broker, publishing disabled")
		} else {
			defer publisher.Close()
			meter.Publisher = publisher
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Listen for any result messages from our jobs, record them in sqlite
	go meter.MonitorAndRecordResults(ctx)

	r := chi.NewRouter()
	// Log requests and recover from panics
	r.Use(middleware.Logger)
	r.Use(lightmeter.HandleServerPanic)
	lightmeter.DefineRoutes(r, meter, cfg.LocalOnly)

	srv := &http.Server{Addr: ":" + cfg.ListenPort(), Handler: r}
	go func() {
		<-ctx.Done()
		meter.StopJob()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if cfg.SSL {
		certPath := "cert.pem"
		keyPath := "key.pem"
		// Generate a self-signed certificate if one doesn't exist
		if err := tools.EnsureCertificate(certPath, keyPath); err != nil {
			l.Fatalf("Failed to create a certificate: %v", err)
		}
		l.Infof("Starting HTTPS server on port %s", cfg.ListenPort())
		err = srv.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Infof("Starting HTTP server on port %s", cfg.ListenPort())
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		l.Errorf("Failed to start server: %v", err)
	}
}

func openSensor(cfg *config.Config) (*tsl2561.TSL2561, error) {
	if cfg.I2CDriver == "periph" {
		return tsl2561.NewPeriphTSL2561(cfg.I2CBus, cfg.SensorAddr, cfg.I2CClock)
	}
	return tsl2561.NewTSL2561(cfg.SensorAddr, cfg.I2CBus)
}
