package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	awsx "github.com/pedidoflow/go-pedidos-api/internal/aws"
	"github.com/pedidoflow/go-pedidos-api/internal/mercadopago"
	"github.com/pedidoflow/go-pedidos-api/internal/pedidos"
	"github.com/pedidoflow/go-pedidos-api/internal/validation"
)

// timestampLayout renders data/data_status fields.
const timestampLayout = "02/01/2006 15:04:05"

// PaymentGateway is the slice of the Mercado Pago client the handlers call.
type PaymentGateway interface {
	CreatePreference(ctx context.Context, order mercadopago.PreferenceOrder) (mercadopago.PreferenceResult, error)
}

// HandlerConfig groups dependencies for the pedidos handlers.
type HandlerConfig struct {
	DynamoDBClient   awsx.DynamoDBAPI
	SQSClient        awsx.SQSAPI
	CloudWatchClient awsx.CloudWatchAPI
	PedidosTable     string
	QueueURL         string
	MetricsNamespace string
	Gateway          PaymentGateway
}

// pedidoResponse is the wire representation of a pedido.
type pedidoResponse struct {
	ID         string            `json:"id"`
	Cliente    *pedidos.Cliente  `json:"cliente"`
	Produtos   []pedidos.Produto `json:"produtos"`
	Valor      float64           `json:"valor"`
	Status     *string           `json:"status"` // null until payment is confirmed
	Observacao string            `json:"observacao,omitempty"`
	Data       string            `json:"data"`
	DataStatus string            `json:"data_status"`
	Pagamento  string            `json:"pagamento"`
}

func toResponse(p pedidos.Pedido) pedidoResponse {
	var status *string
	if p.Status != "" {
		status = &p.Status
	}
	return pedidoResponse{
		ID:         p.ID,
		Cliente:    p.Cliente,
		Produtos:   p.Produtos,
		Valor:      p.Valor,
		Status:     status,
		Observacao: p.Observacao,
		Data:       p.CreatedAt.Format(timestampLayout),
		DataStatus: p.UpdatedAt.Format(timestampLayout),
		Pagamento:  p.Pagamento,
	}
}

func toResponses(ps []pedidos.Pedido) []pedidoResponse {
	out := make([]pedidoResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toResponse(p))
	}
	return out
}

// RegisterPedidosRoutes registers all pedido routes.
func RegisterPedidosRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	store := pedidos.NewStore(cfg.DynamoDBClient, cfg.PedidosTable)
	metrics := awsx.NewMetricsRecorder(cfg.CloudWatchClient, cfg.MetricsNamespace)

	var publisher *awsx.Publisher
	if cfg.SQSClient != nil && cfg.QueueURL != "" {
		publisher = awsx.NewPublisher(cfg.SQSClient, cfg.QueueURL)
	}

	r.GET("/pedidos", func(c *gin.Context) {
		listFiltered(c, store, pedidos.Filter{})
	})

	r.GET("/pedidos/search", func(c *gin.Context) {
		listFiltered(c, store, pedidos.Filter{
			Email:       c.Query("email"),
			CPF:         c.Query("cpf"),
			Produto:     c.Query("produto"),
			ClienteNulo: c.Query("cliente_nulo") == "true",
			Pagamento:   c.Query("pagamento"),
			Status:      c.Query("status"),
		})
	})

	// Named filtered listings, one per filter dimension value.
	named := map[string]pedidos.Filter{
		"/pedidos/pagamento-confirmado": {Pagamento: pedidos.PagamentoConfirmado},
		"/pedidos/pagamento-em-aberto":  {Pagamento: pedidos.PagamentoEmAberto},
		"/pedidos/pagamento-recusado":   {Pagamento: pedidos.PagamentoRecusado},
		"/pedidos/recebidos":            {Status: pedidos.StatusRecebido},
		"/pedidos/em-preparacao":        {Status: pedidos.StatusEmPreparacao},
		"/pedidos/prontos":              {Status: pedidos.StatusPronto},
		"/pedidos/finalizados":          {Status: pedidos.StatusFinalizado},
	}
	for path, filter := range named {
		r.GET(path, func(c *gin.Context) {
			listFiltered(c, store, filter)
		})
	}

	r.GET("/pedidos/:id", func(c *gin.Context) {
		p, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(p))
	})

	r.POST("/pedidos", func(c *gin.Context) {
		var req validation.CreatePedidoRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		p := pedidos.Pedido{
			ID:         uuid.NewString(),
			Cliente:    toCliente(req.Cliente),
			Produtos:   toProdutos(req.Produtos),
			Observacao: req.Observacao,
			Pagamento:  req.Pagamento,
			Status:     req.Status,
		}
		created, err := store.Create(c.Request.Context(), p)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toResponse(created))
	})

	r.PUT("/pedidos/:id", func(c *gin.Context) {
		var req validation.UpdatePedidoRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		patch := pedidos.Patch{
			Cliente:    toCliente(req.Cliente),
			Observacao: req.Observacao,
			Pagamento:  req.Pagamento,
			Status:     req.Status,
		}
		if req.Produtos != nil {
			prods := toProdutos(*req.Produtos)
			patch.Produtos = &prods
		}
		applyUpdate(c, store, metrics, c.Param("id"), patch)
	})

	// Soft delete: the pedido transitions to finalizado and stays retrievable.
	r.DELETE("/pedidos/:id", func(c *gin.Context) {
		status := pedidos.StatusFinalizado
		updated, err := store.Update(c.Request.Context(), c.Param("id"), pedidos.Patch{Status: &status})
		if err != nil {
			writeStoreError(c, err)
			return
		}
		recordTransition(c.Request.Context(), metrics, updated)
		c.JSON(http.StatusOK, gin.H{"message": "Pedido foi finalizado com sucesso."})
	})

	// Named transitions. pagar is the one place payment confirmation and the
	// first status land in a single atomic update.
	pagamentoConfirmado := pedidos.PagamentoConfirmado
	statusRecebido := pedidos.StatusRecebido
	r.PUT("/pedidos/:id/pagar", func(c *gin.Context) {
		applyUpdate(c, store, metrics, c.Param("id"), pedidos.Patch{
			Pagamento: &pagamentoConfirmado,
			Status:    &statusRecebido,
		})
	})
	transitions := map[string]string{
		"receber":   pedidos.StatusRecebido,
		"preparar":  pedidos.StatusEmPreparacao,
		"pronto":    pedidos.StatusPronto,
		"finalizar": pedidos.StatusFinalizado,
	}
	for action, status := range transitions {
		r.PUT("/pedidos/:id/"+action, func(c *gin.Context) {
			applyUpdate(c, store, metrics, c.Param("id"), pedidos.Patch{Status: &status})
		})
	}

	r.GET("/pedidos/:id/qr-code", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, err := store.Get(ctx, c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if cfg.Gateway == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment gateway not configured"})
			return
		}

		result, err := cfg.Gateway.CreatePreference(ctx, toPreferenceOrder(p))
		if err != nil {
			log.Error().Err(err).Str("pedido_id", p.ID).Msg("preference call failed")
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Erro ao criar a preferência: gateway unreachable"})
			return
		}
		if result.StatusCode != http.StatusCreated {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": fmt.Sprintf("Erro ao criar a preferência: %s", result.Message()),
			})
			return
		}
		url, ok := result.CheckoutURL()
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Erro ao criar a preferência: missing checkout URL"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pedido":         toResponse(p),
			"link_pagamento": url,
		})
	})

	// Gateway notifications are acknowledged immediately and applied by the
	// worker; the webhook request never blocks on a payment lookup.
	r.POST("/webhooks/mercadopago", func(c *gin.Context) {
		if publisher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook queue not configured"})
			return
		}

		topic := c.Query("topic")
		resourceID := c.Query("id")
		var body struct {
			Type string `json:"type"`
			Data struct {
				ID json.Number `json:"id"`
			} `json:"data"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			if body.Type != "" {
				topic = body.Type
			}
			if body.Data.ID != "" {
				resourceID = body.Data.ID.String()
			}
		}
		if topic == "" || resourceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing notification topic or id"})
			return
		}

		payload, _ := json.Marshal(map[string]string{
			"topic":       topic,
			"resource_id": resourceID,
		})
		attrs := map[string]string{
			"topic":          topic,
			"correlation_id": c.GetHeader("X-Request-Id"),
		}
		if err := publisher.SendNotification(c.Request.Context(), string(payload), attrs); err != nil {
			log.Error().Err(err).Str("topic", topic).Str("resource_id", resourceID).Msg("enqueue webhook notification")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "queued"})
	})
}

func listFiltered(c *gin.Context, store *pedidos.Store, f pedidos.Filter) {
	list, err := store.Search(c.Request.Context(), f)
	if err != nil {
		log.Error().Err(err).Msg("search pedidos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search_failed"})
		return
	}
	c.JSON(http.StatusOK, toResponses(list))
}

func applyUpdate(c *gin.Context, store *pedidos.Store, metrics *awsx.MetricsRecorder, id string, patch pedidos.Patch) {
	updated, err := store.Update(c.Request.Context(), id, patch)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	recordTransition(c.Request.Context(), metrics, updated)
	c.JSON(http.StatusOK, toResponse(updated))
}

func recordTransition(ctx context.Context, metrics *awsx.MetricsRecorder, p pedidos.Pedido) {
	if err := metrics.RecordTransition(ctx, p.Pagamento, p.Status); err != nil {
		log.Warn().Err(err).Str("pedido_id", p.ID).Msg("record transition metric")
	}
}

// writeStoreError maps store errors to HTTP: validation failures are 422
// with the field-keyed error set, missing pedidos are 404, lost optimistic
// races are 409.
func writeStoreError(c *gin.Context, err error) {
	var fe pedidos.FieldErrors
	switch {
	case errors.As(err, &fe):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": fe})
	case errors.Is(err, pedidos.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "pedido_not_found"})
	case errors.Is(err, pedidos.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "pedido_conflict"})
	default:
		log.Error().Err(err).Msg("pedido store")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func toCliente(p *validation.ClientePayload) *pedidos.Cliente {
	if p == nil {
		return nil
	}
	return &pedidos.Cliente{
		Nome:  p.Nome,
		Email: p.Email,
		CPF:   p.CPF,
		Token: p.Token,
	}
}

func toProdutos(payload []validation.ProdutoPayload) []pedidos.Produto {
	out := make([]pedidos.Produto, 0, len(payload))
	for _, p := range payload {
		out = append(out, pedidos.Produto{Nome: p.Nome, Preco: p.Preco})
	}
	return out
}

func toPreferenceOrder(p pedidos.Pedido) mercadopago.PreferenceOrder {
	order := mercadopago.PreferenceOrder{ID: p.ID}
	for _, prod := range p.Produtos {
		order.Produtos = append(order.Produtos, mercadopago.PreferenceProduto{
			Nome:  prod.Nome,
			Preco: prod.Preco,
		})
	}
	if p.Cliente != nil {
		order.PayerNome = p.Cliente.Nome
		order.PayerEmail = p.Cliente.Email
	}
	return order
}
