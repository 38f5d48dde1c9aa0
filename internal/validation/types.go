package validation

// ClientePayload carries the customer block of a pedido request.
type ClientePayload struct {
	Nome  string `json:"nome"`
	Email string `json:"email" validate:"omitempty,email"`
	CPF   string `json:"cpf"`
	Token string `json:"token"`
}

// ProdutoPayload is one line item in a pedido request. A missing preco is
// accepted and contributes zero to the derived total.
type ProdutoPayload struct {
	Nome  string  `json:"nome" validate:"required"`
	Preco float64 `json:"preco" validate:"gte=0"`
}

// CreatePedidoRequest is the payload for POST /pedidos. Valor is accepted but
// ignored: the total is always derived from produtos on persist. The
// lifecycle invariants (produtos presence, observacao length, pagamento/
// status coupling) are enforced by the domain validator so that every
// violation is reported in one field-keyed set.
type CreatePedidoRequest struct {
	Cliente    *ClientePayload  `json:"cliente" validate:"omitempty"`
	Produtos   []ProdutoPayload `json:"produtos" validate:"dive"`
	Observacao string           `json:"observacao"`
	Pagamento  string           `json:"pagamento"`
	Status     string           `json:"status"`
	Valor      float64          `json:"valor"` // ignored, derived
}

// UpdatePedidoRequest is the payload for PUT /pedidos/:id. Absent fields keep
// their stored values.
type UpdatePedidoRequest struct {
	Cliente    *ClientePayload   `json:"cliente" validate:"omitempty"`
	Produtos   *[]ProdutoPayload `json:"produtos" validate:"omitempty,dive"`
	Observacao *string           `json:"observacao"`
	Pagamento  *string           `json:"pagamento"`
	Status     *string           `json:"status"`
	Valor      *float64          `json:"valor"` // ignored, derived
}
