package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/uptrace/bun/migrate"

	"github.com/craftbill/billinghub.go/db"
	"github.com/craftbill/billinghub.go/db/migrations"
	"github.com/craftbill/billinghub.go/lib/logging"
	"github.com/craftbill/billinghub.go/lib/service"
	"github.com/craftbill/billinghub.go/lib/tokens"
	"github.com/craftbill/billinghub.go/lib/transport"
	"github.com/craftbill/billinghub.go/mailer"
	"github.com/craftbill/billinghub.go/rabbitmq"
	"github.com/craftbill/billinghub.go/render"
	"github.com/craftbill/billinghub.go/storage"
	"github.com/craftbill/billinghub.go/worklog"
)

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

	// Migrate the DB
	startupCtx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(startupCtx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// Setup exception tracking with Sentry if configured
	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			IgnoreErrors:     []string{"401"},
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

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

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// No rabbitmq features will be available in this case.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		rabbitmqClient, err = rabbitmq.Dial(c.RabbitMQUri,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithInvoiceExchange(c.RabbitMQInvoiceExchange),
		)
		if err != nil {
			logger.Fatal(err)
		}

		// close the connection gently at the end of the runtime
		defer rabbitmqClient.Close()
	}

	svc := &service.BillinghubService{
		Config:         c,
		DB:             dbConn,
		Logger:         logger,
		WorklogSource:  worklogSource,
		Uploader:       uploader,
		Mailer:         invoiceMailer,
		Renderer:       render.NewHTMLRenderer(),
		RabbitMQClient: rabbitmqClient,
	}

	//init echo server
	e := transport.InitEcho(c, logger)

	logMw := transport.CreateLoggingMiddleware(logger)
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.DefaultRateLimit, c.BurstRateLimit)
	admin := e.Group("", tokens.AdminTokenMiddleware(c.AdminToken), logMw)

	transport.RegisterEndpoints(svc, e, admin, strictRateLimitMiddleware, logMw)

	var backgroundWg sync.WaitGroup
	backGroundCtx, _ := signal.NotifyContext(context.Background(), os.Interrupt)

	// Run billing cycle phases and the bulk payment job on their
	// configured days
	backgroundWg.Add(1)
	go func() {
		err = svc.StartBillingCycleRoutine(backGroundCtx)
		if err != nil && err != context.Canceled {
			sentry.CaptureException(err)
			svc.Logger.Error(err)
		}
		svc.Logger.Info("Billing cycle routine done")
		backgroundWg.Done()
	}()

	//Start Prometheus server if necessary
	if svc.Config.EnablePrometheus {
		go transport.StartPrometheusEcho(logger, svc, e)
	}

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	//Wait for graceful shutdown of background routines
	backgroundWg.Wait()
	svc.Logger.Info("Billinghub exiting gracefully. Goodbye.")
}
