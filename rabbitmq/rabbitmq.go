package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"

	"github.com/craftbill/billinghub.go/db/models"
)

const (
	contentTypeJSON  = "application/json"
	defaultHeartbeat = 10 * time.Second
	defaultLocale    = "en_US"
)

// InvoiceEvent is the payload published for every invoice lifecycle
// transition. Type is one of the common.InvoiceEvent* constants and
// doubles as the routing key suffix.
type InvoiceEvent struct {
	Type    string          `json:"type"`
	Invoice *models.Invoice `json:"invoice"`
}

type Client interface {
	PublishInvoiceEvent(ctx context.Context, event InvoiceEvent) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	conn *amqp.Connection

	// Publishers get their own channel so they are isolated from any
	// flow control applied to consuming connections.
	publishChannel *amqp.Channel

	logger *lecho.Logger

	invoiceExchange string
}

type ClientOption = func(client *DefaultClient)

func WithInvoiceExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceExchange = exchange
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

// Dial connects to rabbitmq and declares the invoice exchange, ready to
// publish.
func Dial(uri string, options ...ClientOption) (Client, error) {
	conn, err := amqp.DialConfig(uri, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    defaultLocale,
	})
	if err != nil {
		return nil, err
	}

	publishChannel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	client := &DefaultClient{
		conn:           conn,
		publishChannel: publishChannel,
		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.DEBUG),
			lecho.WithTimestamp(),
		),
		invoiceExchange: "billinghub_invoice",
	}

	for _, option := range options {
		option(client)
	}

	err = client.publishChannel.ExchangeDeclare(
		client.invoiceExchange,
		// topic exchanges route messages to queues based on the routing key
		"topic",
		// durable, so the exchange survives server restarts
		true,
		false,
		false,
		// Nowait: false, so we wait for the server to confirm the declare
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}

func (client *DefaultClient) Close() error { return client.conn.Close() }

// PublishInvoiceEvent publishes the event under the routing key
// invoice.<type>, e.g. invoice.approved.
func (client *DefaultClient) PublishInvoiceEvent(ctx context.Context, event InvoiceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("invoice.%s", event.Type)

	err = client.publishChannel.PublishWithContext(ctx,
		client.invoiceExchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType: contentTypeJSON,
			Body:        payload,
		},
	)
	if err != nil {
		captureErr(client.logger, err)
		return err
	}

	client.logger.Debugf("Successfully published invoice event %s for invoice %s", event.Type, event.Invoice.UUID)

	return nil
}

func captureErr(logger *lecho.Logger, err error) {
	logger.Error(err)
	sentry.CaptureException(err)
}
