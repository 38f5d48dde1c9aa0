package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	awsx "github.com/pedidoflow/go-pedidos-api/internal/aws"
	"github.com/pedidoflow/go-pedidos-api/internal/config"
	"github.com/pedidoflow/go-pedidos-api/internal/handlers"
	"github.com/pedidoflow/go-pedidos-api/internal/mercadopago"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterPedidosRoutes(r, cfg)

	return r
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", "pedidos-api").Logger()

	appCfg := config.Load()

	clients, err := awsx.NewAWSClients(context.Background())
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to init aws clients")
	}

	gateway := mercadopago.NewClient(mercadopago.Config{
		AccessToken: appCfg.MercadoPagoAccessToken,
		WebhookURL:  appCfg.MercadoPagoWebhookURL,
		BaseURL:     appCfg.MercadoPagoBaseURL,
		Timeout:     appCfg.MercadoPagoTimeout,
	})

	cfg := handlers.HandlerConfig{
		DynamoDBClient:   clients.DynamoDB,
		SQSClient:        clients.SQS,
		CloudWatchClient: clients.CloudWatch,
		PedidosTable:     appCfg.PedidosTable,
		QueueURL:         appCfg.WebhookQueueURL,
		MetricsNamespace: appCfg.MetricsNamespace,
		Gateway:          gateway,
	}

	r := setupRouter(cfg)

	// if RUN_LOCAL is set to "true", run a local HTTP server for development.
	if appCfg.RunLocal {
		addr := ":" + appCfg.Port
		zlog.Info().Str("addr", addr).Msg("running local server")
		if err := r.Run(addr); err != nil {
			zlog.Fatal().Err(err).Msg("failed to run local server")
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
