// Command railscrond hosts the coordination kernel as a standalone
// process: it wires a lease/audit backend chosen by flag, starts the
// Scheduler, and serves the introspection API until it receives
// SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/railscron/railscron"
	"github.com/railscron/railscron/railsaudit"
	"github.com/railscron/railscron/railshttp"
	"github.com/railscron/railscron/railslease"
	"github.com/railscron/railscron/railslog"
)

type options struct {
	Addr           string `short:"a" long:"addr" description:"HTTP listen address for the introspection API" default:":8080"`
	Namespace      string `short:"n" long:"namespace" description:"Lock/idempotency key namespace" default:"railscron"`
	LeaseBackend   string `short:"l" long:"lease-backend" description:"memory, redis, postgres, or mysql" default:"memory"`
	AuditBackend   string `long:"audit-backend" description:"none, memory, redis, postgres, or mysql" default:"none"`
	RedisAddr      string `long:"redis-addr" description:"Redis address, used when a backend is redis"`
	DatabaseDSN    string `long:"database-dsn" description:"SQL DSN, used when a backend is postgres or mysql"`
	TickInterval   uint   `long:"tick-interval-seconds" default:"5"`
	LeaseTTL       uint   `long:"lease-ttl-seconds" default:"60"`
	WindowLookback uint   `long:"window-lookback-seconds" default:"120"`
}

const shutdownTimeout = 30 * time.Second

func main() {
	opts := options{}
	if _, err := flags.Parse(&opts); err != nil {
		log.Fatal(fmt.Errorf("could not parse command line args: %w", err))
	}

	logger := railslog.NewLogrus(log.StandardLogger())

	leaseBackend, closeLease, err := buildLeaseBackend(opts)
	if err != nil {
		log.Fatal(fmt.Errorf("could not build lease backend: %w", err))
	}
	defer closeLease()

	auditBackend, err := buildAuditBackend(opts)
	if err != nil {
		log.Fatal(fmt.Errorf("could not build audit backend: %w", err))
	}

	sched := railscron.New(
		railscron.WithNamespace(opts.Namespace),
		railscron.WithLeaseBackend(leaseBackend),
		railscron.WithLeaseTTL(time.Duration(opts.LeaseTTL)*time.Second),
		railscron.WithTickInterval(time.Duration(opts.TickInterval)*time.Second),
		railscron.WithWindowLookback(time.Duration(opts.WindowLookback)*time.Second),
		railscron.WithAuditBackend(auditBackend),
		railscron.WithEnableAudit(auditBackend != nil),
		railscron.WithLogger(logger),
	)

	trigger := map[string]railscron.JobFunc{}
	if err := registerDemoJobs(sched, trigger, logger); err != nil {
		log.Fatal(fmt.Errorf("could not register demo jobs: %w", err))
	}

	background := context.Background()
	if err := sched.Start(background); err != nil {
		log.Fatal(fmt.Errorf("could not start scheduler: %w", err))
	}

	server := railshttp.NewServer(sched, trigger, opts.Addr, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil {
			log.Error(fmt.Errorf("listen and serve error: %w", err))
		}
	}()

	<-sigs

	timeoutCtx, cancel := context.WithTimeout(background, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(timeoutCtx); err != nil {
		log.Error(fmt.Errorf("failed to shutdown http server: %w", err))
	}
	if !sched.Stop(shutdownTimeout) {
		log.Error("scheduler did not stop within the shutdown timeout")
	}
	wg.Wait()
}

// registerDemoJobs seeds one every-minute heartbeat job so the demo
// binary has something to dispatch out of the box. Real hosts of this
// package are expected to call sched.Register themselves before Start.
func registerDemoJobs(sched *railscron.Scheduler, trigger map[string]railscron.JobFunc, logger railslog.Logger) error {
	heartbeat := func(ctx context.Context, firing time.Time, idempotencyKey string) error {
		logger.Info("heartbeat fired", railslog.Fields{"firing_at": firing, "idempotency_key": idempotencyKey})
		return nil
	}
	if err := sched.Register("heartbeat", "* * * * *", heartbeat); err != nil {
		return err
	}
	trigger["heartbeat"] = heartbeat
	return nil
}

func buildLeaseBackend(opts options) (railslease.Backend, func(), error) {
	noop := func() {}
	switch opts.LeaseBackend {
	case "memory":
		return railslease.NewMemory(), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		return railslease.NewRedis(client), func() { _ = client.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", opts.DatabaseDSN)
		if err != nil {
			return nil, noop, err
		}
		return railslease.NewSQLAdvisory(db), func() { _ = db.Close() }, nil
	case "mysql":
		db, err := sql.Open("mysql", opts.DatabaseDSN)
		if err != nil {
			return nil, noop, err
		}
		return railslease.NewSQLNamedLock(db), func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown lease backend %q", opts.LeaseBackend)
	}
}

func buildAuditBackend(opts options) (railsaudit.Registry, error) {
	switch opts.AuditBackend {
	case "none", "":
		return nil, nil
	case "memory":
		return railsaudit.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		return railsaudit.NewRedis(client, opts.Namespace, 7*24*time.Hour), nil
	case "postgres":
		db, err := sql.Open("postgres", opts.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		reg := railsaudit.NewSQLPostgres(db)
		if err := reg.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("could not ensure audit schema: %w", err)
		}
		return reg, nil
	case "mysql":
		db, err := sql.Open("mysql", opts.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		reg := railsaudit.NewSQLMySQL(db)
		if err := reg.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("could not ensure audit schema: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", opts.AuditBackend)
	}
}
