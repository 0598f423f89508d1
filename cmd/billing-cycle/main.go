package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/craftbill/billinghub.go/db"
	"github.com/craftbill/billinghub.go/lib/logging"
	"github.com/craftbill/billinghub.go/lib/service"
	"github.com/craftbill/billinghub.go/mailer"
	"github.com/craftbill/billinghub.go/render"
	"github.com/craftbill/billinghub.go/storage"
	"github.com/craftbill/billinghub.go/worklog"
)

// script to run one billing cycle phase by hand:
// billing-cycle <notification|approval|final>
func main() {

	c := &service.Config{}

	// Load configuration from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := logging.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{Dsn: c.SentryDSN}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

	startupCtx := context.Background()

	worklogSource, err := worklog.LoadConfig()
	if err != nil {
		logger.Fatalf("Error loading worklog source config: %v", err)
	}
	uploader, err := storage.LoadConfig(startupCtx)
	if err != nil {
		logger.Fatalf("Error loading storage config: %v", err)
	}
	invoiceMailer, err := mailer.LoadConfig()
	if err != nil {
		logger.Fatalf("Error loading mailer config: %v", err)
	}

	svc := &service.BillinghubService{
		Config:        c,
		DB:            dbConn,
		Logger:        logger,
		WorklogSource: worklogSource,
		Uploader:      uploader,
		Mailer:        invoiceMailer,
		Renderer:      render.NewHTMLRenderer(),
	}

	if len(os.Args) < 2 {
		logger.Fatalf("Usage: %s <notification|approval|final>", os.Args[0])
	}

	now := time.Now()
	switch os.Args[1] {
	case "notification":
		err = svc.RunNotificationPhase(startupCtx, now)
	case "approval":
		err = svc.RunApprovalPhase(startupCtx, now)
	case "final":
		err = svc.RunFinalPhase(startupCtx, now)
	default:
		logger.Fatalf("Unknown billing cycle phase %s", os.Args[1])
	}
	if err != nil {
		sentry.CaptureException(err)
		svc.Logger.Fatal(err)
	}
}
