package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingrepo "zapflow_backend/internal/billing/repository"
	billing "zapflow_backend/internal/billing/service"
	campaigndispatch "zapflow_backend/internal/campaign/dispatcher"
	campaignrepo "zapflow_backend/internal/campaign/repository"
	connrepo "zapflow_backend/internal/connection/repository"
	crmrepo "zapflow_backend/internal/crmauto/repository"
	crmauto "zapflow_backend/internal/crmauto/service"
	"zapflow_backend/internal/email"
	nurturingdispatch "zapflow_backend/internal/nurturing/dispatcher"
	nurturingrepo "zapflow_backend/internal/nurturing/repository"
	orgrepo "zapflow_backend/internal/organization/repository"
	scheduleddispatch "zapflow_backend/internal/scheduledmsg/dispatcher"
	scheduledrepo "zapflow_backend/internal/scheduledmsg/repository"
	"zapflow_backend/internal/scheduler"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/db"
	"zapflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	connections := connrepo.New(pool)
	organizations := orgrepo.New(pool, cfg.GetSMTPSecretKey())
	mail := email.NewSMTPSender(cfg.GetSMTPAllowSelfSigned())

	runners := scheduler.Runners{
		Campaigns: campaigndispatch.New(campaignrepo.New(pool), whatsapp.NewSender, cfg, log),
		Scheduled: scheduleddispatch.New(scheduledrepo.New(pool), whatsapp.NewSender, cfg, log),
		Nurturing: nurturingdispatch.New(nurturingrepo.New(pool), connections, organizations, whatsapp.NewSender, mail, cfg, log),
		Billing:   billing.New(billingrepo.New(pool), connections, organizations, whatsapp.NewSender, mail, log),
		CRM:       crmauto.New(crmrepo.New(pool), connections, whatsapp.NewSender, log),
	}

	worker, err := scheduler.NewWorker(cfg, runners, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	cron, err := scheduler.NewCron(cfg, log)
	if err != nil {
		log.Error("failed to initialize cron", "error", err)
		panic("failed to initialize cron: " + err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cron.Run()
	})
	g.Go(func() error {
		<-ctx.Done()
		cron.Shutdown()
		return nil
	})
	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
