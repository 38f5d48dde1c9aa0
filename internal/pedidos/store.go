package pedidos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pedidoflow/go-pedidos-api/internal/aws"
)

// ErrNotFound indicates the requested pedido does not exist.
var ErrNotFound = errors.New("pedido not found")

// ErrConflict indicates an update lost the optimistic-concurrency race too
// many times in a row.
var ErrConflict = errors.New("pedido was modified concurrently")

// updateRetries bounds how often Update re-reads and re-applies a patch after
// a conditional write failure before giving up.
const updateRetries = 3

// Store encapsulates operations on the pedidos table. Every write runs the
// lifecycle validation first and recomputes valor from the produtos that are
// actually persisted; a rejected write leaves the stored record untouched.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new pedidos Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create validates and persists a new pedido in one atomic step. The caller
// supplies the ID; pagamento defaults to em_aberto when empty. Returns the
// pedido as stored, or FieldErrors when validation rejects it.
func (s *Store) Create(ctx context.Context, p Pedido) (Pedido, error) {
	if p.Pagamento == "" {
		p.Pagamento = PagamentoEmAberto
	}
	if fe := Validate(p); fe != nil {
		return Pedido{}, fe
	}
	p.Valor = ComputeValor(p.Produtos)

	now := s.nowFunc().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return Pedido{}, fmt.Errorf("marshal pedido: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(pedido_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return Pedido{}, fmt.Errorf("pedido %s already exists", p.ID)
		}
		return Pedido{}, fmt.Errorf("put item: %w", err)
	}
	return p, nil
}

// Get fetches a pedido by id. Returns ErrNotFound when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (Pedido, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"pedido_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return Pedido{}, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return Pedido{}, ErrNotFound
	}
	var p Pedido
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return Pedido{}, fmt.Errorf("unmarshal pedido: %w", err)
	}
	return p, nil
}

// Update merges the patch into the stored pedido, re-validates the lifecycle
// rules (including the transition guard, which runs against the pagamento
// about to be persisted), recomputes valor and writes the result with a
// conditional check on the stored version. A lost race re-reads and re-applies
// the patch, so the guard is always evaluated against a consistent prior
// state. Nothing is persisted when validation rejects the merged value.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Pedido, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		stored, err := s.Get(ctx, id)
		if err != nil {
			return Pedido{}, err
		}

		next := stored.apply(patch)
		if fe := Validate(next); fe != nil {
			return Pedido{}, fe
		}
		if fe := ValidateChange(stored, next); fe != nil {
			return Pedido{}, fe
		}
		next.Valor = ComputeValor(next.Produtos)
		next.UpdatedAt = s.nowFunc().UTC()
		next.Version = stored.Version + 1

		item, err := attributevalue.MarshalMap(next)
		if err != nil {
			return Pedido{}, fmt.Errorf("marshal pedido: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("version = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", stored.Version)},
			},
		})
		if err != nil {
			var cc *types.ConditionalCheckFailedException
			if errors.As(err, &cc) {
				continue // concurrent writer won; retry on fresh state
			}
			return Pedido{}, fmt.Errorf("put item: %w", err)
		}
		return next, nil
	}
	return Pedido{}, ErrConflict
}

// Search scans the table and returns pedidos matching every set dimension of
// the filter, most-recently-updated first. Pagamento, status and the
// cliente-null flag are pushed into the scan's FilterExpression; email, cpf
// and the produto substring run in memory over the scanned items (there is no
// index for them, so this is an explicit full scan).
func (s *Store) Search(ctx context.Context, f Filter) ([]Pedido, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}

	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if f.Pagamento != "" {
		conds = append(conds, "pagamento = :pg")
		values[":pg"] = &types.AttributeValueMemberS{Value: f.Pagamento}
	}
	if f.Status != "" {
		conds = append(conds, "#st = :st")
		names["#st"] = "status"
		values[":st"] = &types.AttributeValueMemberS{Value: f.Status}
	}
	if f.ClienteNulo {
		conds = append(conds, "attribute_not_exists(cliente)")
	}
	if len(conds) > 0 {
		expr := strings.Join(conds, " AND ")
		input.FilterExpression = &expr
		if len(names) > 0 {
			input.ExpressionAttributeNames = names
		}
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}

	var out []Pedido
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for _, item := range page.Items {
			var p Pedido
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				return nil, fmt.Errorf("unmarshal pedido: %w", err)
			}
			if matches(p, f) {
				out = append(out, p)
			}
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// List returns every pedido, most-recently-updated first.
func (s *Store) List(ctx context.Context) ([]Pedido, error) {
	return s.Search(ctx, Filter{})
}

// matches applies the in-memory filter dimensions.
func matches(p Pedido, f Filter) bool {
	if f.Email != "" && (p.Cliente == nil || p.Cliente.Email != f.Email) {
		return false
	}
	if f.CPF != "" && (p.Cliente == nil || p.Cliente.CPF != f.CPF) {
		return false
	}
	if f.Produto != "" {
		want := strings.ToLower(f.Produto)
		found := false
		for _, prod := range p.Produtos {
			if strings.Contains(strings.ToLower(prod.Nome), want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func awsString(s string) *string { return &s }
