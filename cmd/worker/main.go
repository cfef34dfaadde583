// Command worker is the node-local device-group agent: it reconciles this
// host's Docker containers against the snapshot a Nebula manager
// publishes for its device group. Adapted from controller_go/cmd/main.go's
// signal-driven startup/shutdown shape.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nebulaorch/worker/internal/audit"
	"github.com/nebulaorch/worker/internal/config"
	"github.com/nebulaorch/worker/internal/dockerrt"
	"github.com/nebulaorch/worker/internal/engine"
	"github.com/nebulaorch/worker/internal/hostfacts"
	"github.com/nebulaorch/worker/internal/httpapi"
	"github.com/nebulaorch/worker/internal/managerclient"
	"github.com/nebulaorch/worker/internal/messaging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load("config/conf.json")
	workerID := uuid.NewString()

	host, err := hostfacts.Collect()
	if err != nil {
		engine.Fatal("worker: failed to collect host facts: %v", err)
	}
	log.Printf("worker: host facts: %d CPU cores, %d MiB memory", host.CPUCores, host.TotalMemMiB)

	rt, err := dockerrt.New()
	if err != nil {
		engine.Fatal("worker: failed to create docker runtime client: %v", err)
	}

	mgr := managerclient.New(cfg.NebulaManagerURL)
	engine.SetDeviceGroupAbsentCheck(func(err error) bool {
		return errors.Is(err, managerclient.ErrDeviceGroupAbsent)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.CheckAPI(ctx); err != nil {
		engine.Fatal("worker: manager is unreachable: %v", err)
	}

	var publisher engine.Publisher
	if cfg.KafkaBootstrapServers != "" {
		servers := strings.Split(cfg.KafkaBootstrapServers, ",")
		kp := messaging.NewKafkaProducer(servers, "nebula.worker.reports")
		defer kp.Close()
		publisher = kp
	}

	var auditStore *audit.Store
	if cfg.AuditDatabaseURL != "" {
		auditStore, err = audit.Open(cfg.AuditDatabaseURL)
		if err != nil {
			log.Printf("worker: audit log disabled, failed to open: %v", err)
		} else {
			defer auditStore.Close()
		}
	}

	bootCfg := engine.BootConfig{
		DeviceGroupName:     cfg.DeviceGroupName,
		NetworkName:         "nebula",
		NetworkDriver:       "bridge",
		RegistryURL:         cfg.RegistryURL,
		RegistryUser:        cfg.RegistryUser,
		RegistryPassword:    cfg.RegistryPassword,
		MaxWorkers:          host.CPUCores * 4,
		MaxRestartWait:      time.Duration(cfg.MaxRestartWaitSeconds) * time.Second,
		HealthCheckInterval: time.Duration(cfg.HealthCheckIntervalS) * time.Second,
		PollInterval:        time.Duration(cfg.PollIntervalSeconds) * time.Second,
		ReportingFailHard:   cfg.ReportingFailHard,
		WorkerID:            workerID,
	}

	var auditSink engine.AuditSink
	if auditStore != nil {
		auditSink = auditStore
	}

	agent, err := engine.Bootstrap(ctx, rt, mgr, publisher, auditSink, host, bootCfg)
	if err != nil {
		engine.Fatal("worker: bootstrap failed: %v", err)
	}

	go agent.Health.Run(ctx)
	go agent.RunReconciliationLoop(ctx)

	server := httpapi.New(agent.Reconciler, workerID)
	go func() {
		if err := server.Run(cfg.HTTPListenAddr); err != nil {
			log.Printf("worker: diagnostics server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("worker: received shutdown signal, exiting")
}
