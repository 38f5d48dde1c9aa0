package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pedidoflow/go-pedidos-api/internal/idempotency"
	"github.com/pedidoflow/go-pedidos-api/internal/mercadopago"
	"github.com/pedidoflow/go-pedidos-api/internal/pedidos"
)

// mockDynamo backs both the pedidos table and the notifications table. Items
// are keyed by whichever primary key attribute they carry.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

func itemPK(item map[string]types.AttributeValue) (string, error) {
	for _, attr := range []string{"pedido_id", "notification_key"} {
		if v, ok := item[attr]; ok {
			return v.(*types.AttributeValueMemberS).Value, nil
		}
	}
	return "", errors.New("no primary key in item")
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.table(*params.TableName)
	pk, err := itemPK(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		switch expr := *params.ConditionExpression; {
		case strings.HasPrefix(expr, "attribute_not_exists("):
			if _, exists := tbl[pk]; exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case expr == "version = :v":
			existing, exists := tbl[pk]
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
			curr, ok := existing["version"].(*types.AttributeValueMemberN)
			want := params.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN)
			if !ok || curr.Value != want.Value {
				return nil, &types.ConditionalCheckFailedException{}
			}
		default:
			return nil, errors.New("unsupported condition expression: " + expr)
		}
	}
	tbl[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.table(*params.TableName)
	pk, err := itemPK(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := tbl[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.table(*params.TableName)
	pk, err := itemPK(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := tbl[pk]
	if !exists {
		return nil, errors.New("item not found")
	}
	if v, ok := params.ExpressionAttributeValues[":st"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":n"]; ok {
		item["note"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	tbl[pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &dyn.ScanOutput{}
	for _, item := range m.table(*params.TableName) {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// fakePayments serves canned payments by id and counts lookups.
type fakePayments struct {
	payments map[string]mercadopago.Payment
	err      error
	calls    int
}

func (f *fakePayments) GetPayment(ctx context.Context, id string) (mercadopago.Payment, error) {
	f.calls++
	if f.err != nil {
		return mercadopago.Payment{}, f.err
	}
	return f.payments[id], nil
}

func newTestProcessor(payments *fakePayments) (*Processor, *pedidos.Store) {
	mock := newMockDynamo()
	pedidoStore := pedidos.NewStore(mock, "pedidos")
	notifStore := idempotency.NewStore(mock, "pedido_notifications", 48*time.Hour)
	return NewProcessor(pedidoStore, notifStore, payments), pedidoStore
}

func sqsEvent(bodies ...string) events.SQSEvent {
	ev := events.SQSEvent{}
	for _, b := range bodies {
		ev.Records = append(ev.Records, events.SQSMessage{Body: b})
	}
	return ev
}

func paymentMessage(resourceID string) string {
	b, _ := json.Marshal(WorkerMessage{Topic: "payment", ResourceID: resourceID})
	return string(b)
}

func seedPedido(t *testing.T, store *pedidos.Store, id string) {
	t.Helper()
	_, err := store.Create(context.Background(), pedidos.Pedido{
		ID:       id,
		Produtos: []pedidos.Produto{{Nome: "Pizza", Preco: 10}},
	})
	if err != nil {
		t.Fatalf("seed pedido: %v", err)
	}
}

func TestHandle_ApprovedPaymentConfirmsPedido(t *testing.T) {
	payments := &fakePayments{payments: map[string]mercadopago.Payment{
		"555": {ID: 555, Status: mercadopago.PaymentApproved, ExternalReference: "pedido-1"},
	}}
	p, store := newTestProcessor(payments)
	seedPedido(t, store, "pedido-1")

	if err := p.Handle(context.Background(), sqsEvent(paymentMessage("555"))); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	got, err := store.Get(context.Background(), "pedido-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Pagamento != pedidos.PagamentoConfirmado {
		t.Fatalf("pagamento = %s, want confirmado", got.Pagamento)
	}
	if got.Status != pedidos.StatusRecebido {
		t.Fatalf("status = %s, want recebido", got.Status)
	}
}

func TestHandle_RejectedPaymentDeclinesPedido(t *testing.T) {
	payments := &fakePayments{payments: map[string]mercadopago.Payment{
		"556": {ID: 556, Status: mercadopago.PaymentRejected, ExternalReference: "pedido-2"},
	}}
	p, store := newTestProcessor(payments)
	seedPedido(t, store, "pedido-2")

	if err := p.Handle(context.Background(), sqsEvent(paymentMessage("556"))); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	got, err := store.Get(context.Background(), "pedido-2")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Pagamento != pedidos.PagamentoRecusado {
		t.Fatalf("pagamento = %s, want recusado", got.Pagamento)
	}
	if got.Status != "" {
		t.Fatalf("status = %s, want empty on declined payment", got.Status)
	}
}

func TestHandle_DuplicateNotificationAppliedOnce(t *testing.T) {
	payments := &fakePayments{payments: map[string]mercadopago.Payment{
		"557": {ID: 557, Status: mercadopago.PaymentApproved, ExternalReference: "pedido-3"},
	}}
	p, store := newTestProcessor(payments)
	seedPedido(t, store, "pedido-3")

	msg := paymentMessage("557")
	if err := p.Handle(context.Background(), sqsEvent(msg, msg)); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if payments.calls != 1 {
		t.Fatalf("payment fetched %d times, want 1", payments.calls)
	}
}

func TestHandle_ConfirmedPedidoNotMovedBackwards(t *testing.T) {
	payments := &fakePayments{payments: map[string]mercadopago.Payment{
		"558": {ID: 558, Status: mercadopago.PaymentApproved, ExternalReference: "pedido-4"},
	}}
	p, store := newTestProcessor(payments)
	seedPedido(t, store, "pedido-4")

	// the kitchen already advanced this pedido past recebido
	pagamento := pedidos.PagamentoConfirmado
	status := pedidos.StatusPronto
	if _, err := store.Update(context.Background(), "pedido-4", pedidos.Patch{Pagamento: &pagamento, Status: &status}); err != nil {
		t.Fatalf("advance pedido: %v", err)
	}

	if err := p.Handle(context.Background(), sqsEvent(paymentMessage("558"))); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	got, err := store.Get(context.Background(), "pedido-4")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != pedidos.StatusPronto {
		t.Fatalf("status = %s, want pronto to survive a late notification", got.Status)
	}
}

func TestHandle_IgnoresOtherTopics(t *testing.T) {
	payments := &fakePayments{}
	p, _ := newTestProcessor(payments)

	b, _ := json.Marshal(WorkerMessage{Topic: "merchant_order", ResourceID: "99"})
	if err := p.Handle(context.Background(), sqsEvent(string(b))); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if payments.calls != 0 {
		t.Fatalf("payment fetched %d times for a non-payment topic, want 0", payments.calls)
	}
}

func TestHandle_PendingPaymentLeavesPedidoOpen(t *testing.T) {
	payments := &fakePayments{payments: map[string]mercadopago.Payment{
		"559": {ID: 559, Status: "pending", ExternalReference: "pedido-5"},
	}}
	p, store := newTestProcessor(payments)
	seedPedido(t, store, "pedido-5")

	if err := p.Handle(context.Background(), sqsEvent(paymentMessage("559"))); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	got, err := store.Get(context.Background(), "pedido-5")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Pagamento != pedidos.PagamentoEmAberto {
		t.Fatalf("pagamento = %s, want em_aberto", got.Pagamento)
	}
}

func TestHandle_FetchErrorMarksFailed(t *testing.T) {
	payments := &fakePayments{err: errors.New("gateway down")}
	p, _ := newTestProcessor(payments)

	err := p.Handle(context.Background(), sqsEvent(paymentMessage("560")))
	if err == nil {
		t.Fatalf("expected error when payment lookup fails")
	}
}
