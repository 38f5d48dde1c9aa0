package pedidos

import "time"

// Pagamento states
const (
	PagamentoEmAberto   = "em_aberto"
	PagamentoConfirmado = "confirmado"
	PagamentoRecusado   = "recusado"
)

// Status (kitchen progress) values; only meaningful once pagamento is confirmado.
const (
	StatusRecebido     = "recebido"
	StatusEmPreparacao = "em_preparacao"
	StatusPronto       = "pronto"
	StatusFinalizado   = "finalizado"
)

// MaxObservacaoLen is the longest note a pedido may carry.
const MaxObservacaoLen = 500

// Cliente identifies the customer who placed a pedido. Pedidos may be
// anonymous, in which case the whole struct is absent.
type Cliente struct {
	Nome  string `json:"nome,omitempty" dynamodbav:"nome,omitempty"`
	Email string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	CPF   string `json:"cpf,omitempty" dynamodbav:"cpf,omitempty"`
	Token string `json:"token,omitempty" dynamodbav:"token,omitempty"`
}

// Produto is one line item on a pedido.
type Produto struct {
	Nome  string  `json:"nome" dynamodbav:"nome"`
	Preco float64 `json:"preco" dynamodbav:"preco"`
}

// Pedido is the item stored in the pedidos DynamoDB table.
// Valor is always derived from Produtos on persist; a caller-supplied value is
// silently overwritten. Version backs the conditional writes that serialize
// concurrent updates to the same pedido.
type Pedido struct {
	ID         string    `json:"id" dynamodbav:"pedido_id"` // PK
	Cliente    *Cliente  `json:"cliente" dynamodbav:"cliente,omitempty"`
	Produtos   []Produto `json:"produtos" dynamodbav:"produtos"`
	Observacao string    `json:"observacao,omitempty" dynamodbav:"observacao,omitempty"`
	Valor      float64   `json:"valor" dynamodbav:"valor"`
	Pagamento  string    `json:"pagamento" dynamodbav:"pagamento"` // em_aberto | confirmado | recusado
	Status     string    `json:"status,omitempty" dynamodbav:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" dynamodbav:"updated_at"`
	Version    int64     `json:"-" dynamodbav:"version"`
}

// Patch carries a partial update; nil fields keep their stored values.
type Patch struct {
	Cliente    *Cliente
	Produtos   *[]Produto
	Observacao *string
	Pagamento  *string
	Status     *string
}

// Filter is an exact-match conjunction over pedido attributes. Zero values
// mean "don't filter on this dimension". Produto matches by case-insensitive
// substring of any line item's nome.
type Filter struct {
	Email       string
	CPF         string
	Produto     string
	ClienteNulo bool
	Pagamento   string
	Status      string
}

func validPagamento(p string) bool {
	switch p {
	case PagamentoEmAberto, PagamentoConfirmado, PagamentoRecusado:
		return true
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case StatusRecebido, StatusEmPreparacao, StatusPronto, StatusFinalizado:
		return true
	}
	return false
}
