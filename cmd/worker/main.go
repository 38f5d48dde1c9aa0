package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	awsx "github.com/pedidoflow/go-pedidos-api/internal/aws"
	"github.com/pedidoflow/go-pedidos-api/internal/config"
	"github.com/pedidoflow/go-pedidos-api/internal/idempotency"
	"github.com/pedidoflow/go-pedidos-api/internal/mercadopago"
	"github.com/pedidoflow/go-pedidos-api/internal/pedidos"
)

// notificationTTL is how long processed webhook notifications stay deduped.
const notificationTTL = 48 * time.Hour

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", "pedidos-worker").Logger()

	appCfg := config.Load()

	clients, err := awsx.NewAWSClients(context.Background())
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to init aws clients")
	}

	payments := mercadopago.NewClient(mercadopago.Config{
		AccessToken: appCfg.MercadoPagoAccessToken,
		WebhookURL:  appCfg.MercadoPagoWebhookURL,
		BaseURL:     appCfg.MercadoPagoBaseURL,
		Timeout:     appCfg.MercadoPagoTimeout,
	})

	processor := NewProcessor(
		pedidos.NewStore(clients.DynamoDB, appCfg.PedidosTable),
		idempotency.NewStore(clients.DynamoDB, appCfg.NotificationsTable, notificationTTL),
		payments,
	)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if appCfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"topic":"payment","resource_id":"local-payment-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := processor.Handle(context.Background(), event); err != nil {
			zlog.Fatal().Err(err).Msg("local handler error")
		}
		return
	}

	lambda.Start(processor.Handle)
}
