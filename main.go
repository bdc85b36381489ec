package main

import (
	"log"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"otportal/config"
	"otportal/database"
	"otportal/export"
	"otportal/filer"
	"otportal/handlers"
	"otportal/policy"
	"otportal/reminder"
	"otportal/rollup"
	"otportal/session"
	"otportal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := database.Init(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db := database.GetDB()

	// Identity and sessions.
	idp := session.NewHTTPIdentityProvider(cfg.IdPBaseURL, cfg.IdPTimeout)
	sessions := session.New(db, idp, cfg.CacheTTL, cfg.SessionTTL)

	// Export pipeline.
	aggregator := rollup.New(db)
	dialer := filer.NewSMBDialer(cfg.SMBDialTimeout, cfg.SMBOpTimeout)
	publisher := filer.NewPublisher(db, dialer, cfg.SMBSecretKey)
	orchestrator := export.NewOrchestrator(db, aggregator, publisher, export.Options{
		MaxAttempts:   cfg.ExportMaxAttempts,
		RetryBase:     cfg.ExportRetryBase,
		ExcelTempOnly: cfg.ExcelTempOnly,
		ExcelLocalDir: cfg.ExcelLocalDir,
		OpTimeout:     cfg.SMBOpTimeout,
	})
	defer orchestrator.Stop()

	// Request lifecycle.
	limits := policy.New(db)
	requests := workflow.New(db, limits, orchestrator, cfg.RequestHorizonDays)

	reminders := reminder.NewService(db, cfg.RemindAhead)

	// Periodic jobs: session sweep and reminder tick.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(cfg.SweepSpec, func() {
		if _, err := sessions.SweepExpired(); err != nil {
			log.Printf("[scheduler] session sweep: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule session sweep: %v", err)
	}
	if _, err := scheduler.AddFunc(cfg.RemindSpec, func() {
		if _, err := reminders.Upcoming(time.Now()); err != nil {
			log.Printf("[scheduler] reminder tick: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule reminder tick: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := handlers.NewRouter(handlers.Deps{
		Sessions: sessions,
		Auth:     handlers.NewAuthHandler(sessions),
		Overtime: handlers.NewOvertimeHandler(db, requests),
		Users:    handlers.NewUserHandler(db),
		Calendar: handlers.NewCalendarHandler(db, reminders),
		Admin:    handlers.NewAdminHandler(db, cfg.SMBSecretKey),
	})

	log.Printf("Server starting on port %s", cfg.ServerPort)
	log.Fatal(http.ListenAndServe(":"+cfg.ServerPort, router))
}
