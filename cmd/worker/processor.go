package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/pedidoflow/go-pedidos-api/internal/idempotency"
	"github.com/pedidoflow/go-pedidos-api/internal/mercadopago"
	"github.com/pedidoflow/go-pedidos-api/internal/pedidos"
)

// PaymentFetcher resolves a gateway notification into a payment.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, id string) (mercadopago.Payment, error)
}

// Processor applies webhook notifications to pedidos. An approved payment
// lands as the pagar transition (pagamento=confirmado, status=recebido in one
// update); a rejected one sets pagamento=recusado. All writes go through the
// store's validated update path, so the lifecycle rules still guard them.
type Processor struct {
	pedidoStore *pedidos.Store
	notifStore  *idempotency.Store
	payments    PaymentFetcher
}

// NewProcessor wires the worker's stores and payment client.
func NewProcessor(pedidoStore *pedidos.Store, notifStore *idempotency.Store, payments PaymentFetcher) *Processor {
	return &Processor{
		pedidoStore: pedidoStore,
		notifStore:  notifStore,
		payments:    payments,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry; repeated failures land in the DLQ.
			log.Error().Err(err).Msg("worker error")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg WorkerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Info().Str("topic", msg.Topic).Str("resource_id", msg.ResourceID).Msg("notification received")

	if msg.Topic != "payment" {
		// Other topics (merchant_order etc.) carry nothing the lifecycle needs.
		return nil
	}

	// Claim the notification so duplicate deliveries are applied once.
	key := "payment:" + msg.ResourceID
	created, err := p.notifStore.CreateIfNotExists(ctx, key, "")
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	if !created {
		log.Info().Str("key", key).Msg("duplicate notification, skipping")
		return nil
	}

	payment, err := p.payments.GetPayment(ctx, msg.ResourceID)
	if err != nil {
		if mfErr := p.notifStore.MarkFailed(ctx, key, err.Error()); mfErr != nil {
			log.Warn().Err(mfErr).Str("key", key).Msg("mark notification failed")
		}
		return fmt.Errorf("fetch payment: %w", err)
	}
	if payment.ExternalReference == "" {
		return p.notifStore.MarkDone(ctx, key) // not one of ours
	}

	if err := p.applyPayment(ctx, payment); err != nil {
		if mfErr := p.notifStore.MarkFailed(ctx, key, err.Error()); mfErr != nil {
			log.Warn().Err(mfErr).Str("key", key).Msg("mark notification failed")
		}
		return err
	}
	return p.notifStore.MarkDone(ctx, key)
}

func (p *Processor) applyPayment(ctx context.Context, payment mercadopago.Payment) error {
	pedidoID := payment.ExternalReference

	stored, err := p.pedidoStore.Get(ctx, pedidoID)
	if err != nil {
		return fmt.Errorf("fetch pedido %s: %w", pedidoID, err)
	}
	if stored.Pagamento == pedidos.PagamentoConfirmado {
		// Payment already settled; never move the kitchen status backwards.
		log.Info().Str("pedido_id", pedidoID).Msg("pagamento already confirmed")
		return nil
	}

	var patch pedidos.Patch
	switch payment.Status {
	case mercadopago.PaymentApproved:
		pagamento := pedidos.PagamentoConfirmado
		status := pedidos.StatusRecebido
		patch = pedidos.Patch{Pagamento: &pagamento, Status: &status}
	case mercadopago.PaymentRejected:
		pagamento := pedidos.PagamentoRecusado
		patch = pedidos.Patch{Pagamento: &pagamento}
	default:
		// pending, in_process, ... — nothing to apply yet.
		log.Info().Str("pedido_id", pedidoID).Str("payment_status", payment.Status).Msg("no transition for payment status")
		return nil
	}

	updated, err := p.pedidoStore.Update(ctx, pedidoID, patch)
	if err != nil {
		return fmt.Errorf("apply payment %s to pedido %s: %w", payment.Status, pedidoID, err)
	}
	log.Info().Str("pedido_id", pedidoID).Str("pagamento", updated.Pagamento).Str("status", updated.Status).Msg("payment applied")
	return nil
}
