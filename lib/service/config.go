package service

type Config struct {
	DatabaseUri             string  `envconfig:"DATABASE_URI" required:"true"`
	DatabaseMaxConns        int     `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMaxIdleConns    int     `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime int     `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"1800"` // 30 minutes
	SentryDSN               string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	LogFilePath             string  `envconfig:"LOG_FILE_PATH"`
	AdminToken              string  `envconfig:"ADMIN_TOKEN"`
	Host                    string  `envconfig:"HOST" default:"localhost:3000"`
	Port                    int     `envconfig:"PORT" default:"3000"`
	DefaultRateLimit        int     `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	BurstRateLimit          int     `envconfig:"BURST_RATE_LIMIT" default:"1"`
	EnablePrometheus        bool    `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort          int     `envconfig:"PROMETHEUS_PORT" default:"9092"`

	// The public base URL used to build invoice approval links.
	BaseSiteUrl  string `envconfig:"BASE_SITE_URL" default:"http://localhost:3000"`
	BillingEmail string `envconfig:"BILLING_EMAIL" default:"billing@example.com"`

	// Billing cycle: the client accounts to bill, and the days of the
	// month on which each phase runs.
	BillingCycleClients    []string `envconfig:"BILLING_CYCLE_CLIENTS"`
	InvoiceNotificationDay int      `envconfig:"INVOICE_NOTIFICATION_DAY" default:"1"`
	InvoiceApprovalDay     int      `envconfig:"INVOICE_APPROVAL_DAY" default:"3"`
	InvoiceFinalDay        int      `envconfig:"INVOICE_FINAL_DAY" default:"5"`
	InvoiceDueDateDays     int      `envconfig:"INVOICE_DUE_DATE_DAYS" default:"20"`

	// Bulk payments: the account sending them and the day of the month
	// on which the batch job runs.
	BulkPaymentSender string `envconfig:"BULK_PAYMENT_SENDER"`
	BulkPaymentDay    int    `envconfig:"BULK_PAYMENT_DAY" default:"7"`

	// If no RABBITMQ_URI is provided, invoice events are not published.
	RabbitMQUri             string `envconfig:"RABBITMQ_URI"`
	RabbitMQInvoiceExchange string `envconfig:"RABBITMQ_INVOICE_EXCHANGE" default:"billinghub_invoice"`
}
