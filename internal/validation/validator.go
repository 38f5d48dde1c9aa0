package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. Payload-shape rules (tag-based) live
// here; the cross-field lifecycle rules are the domain's concern and run in
// the pedidos package where all violations are collected together.
func New() *validatorv10.Validate {
	return validatorv10.New()
}
