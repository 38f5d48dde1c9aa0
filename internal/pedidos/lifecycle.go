package pedidos

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// FieldErrors collects validation failures keyed by field name. It is the
// ValidationError surfaced to callers; an empty map is never returned in
// place of nil.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Error renders the collected violations deterministically (fields sorted).
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", f, strings.Join(fe[f], ", "))
	}
	return b.String()
}

// Validate checks the persist-time invariants of a pedido: enum membership,
// produtos presence, observacao length, and the pagamento/status coupling.
// All applicable violations are collected before rejecting. Returns nil when
// the pedido may be persisted.
func Validate(p Pedido) FieldErrors {
	fe := FieldErrors{}

	if !validPagamento(p.Pagamento) {
		fe.add("pagamento", fmt.Sprintf("%q is not a valid payment state", p.Pagamento))
	}
	if p.Status != "" && !validStatus(p.Status) {
		fe.add("status", fmt.Sprintf("%q is not a valid fulfillment status", p.Status))
	}
	if len(p.Produtos) == 0 {
		fe.add("produtos", "at least one produto is required")
	}
	// The limit counts characters, not bytes; notes are Portuguese free text.
	if utf8.RuneCountInString(p.Observacao) > MaxObservacaoLen {
		fe.add("observacao", fmt.Sprintf("must be at most %d characters", MaxObservacaoLen))
	}

	switch p.Pagamento {
	case PagamentoEmAberto, PagamentoRecusado:
		if p.Status != "" {
			fe.add("status", "fulfillment status cannot be set while payment is open or declined")
		}
	case PagamentoConfirmado:
		if p.Status == "" {
			fe.add("status", "fulfillment status is required once payment is confirmed")
		}
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidateChange guards status transitions on update. The check runs against
// the pagamento about to be persisted, not the stored one, so a single update
// may confirm payment and set the first status together. No forward-only
// ordering is imposed between the four status values; sequencing comes from
// which transition endpoint the caller invokes.
func ValidateChange(stored, next Pedido) FieldErrors {
	if stored.Status == next.Status {
		return nil
	}
	if next.Pagamento == PagamentoConfirmado {
		return nil
	}
	return FieldErrors{
		"status": {"fulfillment status cannot change unless payment is confirmed"},
	}
}

// ComputeValor derives the pedido total from its line items. A produto with
// no preco contributes zero; an empty list sums to zero (though validation
// keeps empty lists from ever being persisted).
func ComputeValor(produtos []Produto) float64 {
	var total float64
	for _, p := range produtos {
		total += p.Preco
	}
	return total
}

// apply merges a partial patch into a stored pedido and returns the candidate
// value to validate and persist.
func (p Pedido) apply(patch Patch) Pedido {
	next := p
	if patch.Cliente != nil {
		next.Cliente = patch.Cliente
	}
	if patch.Produtos != nil {
		next.Produtos = *patch.Produtos
	}
	if patch.Observacao != nil {
		next.Observacao = *patch.Observacao
	}
	if patch.Pagamento != nil {
		next.Pagamento = *patch.Pagamento
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	return next
}
