package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// CreateRequest asks an operator to create a namespace seeded with texts.
type CreateRequest struct {
	Version          Version  `json:"version"`
	TenantName       string   `json:"tenant_name" validate:"required"`
	OrganizationName string   `json:"organization_name" validate:"required"`
	NamespaceName    string   `json:"namespace_name" validate:"required"`
	Category         string   `json:"category,omitempty"`
	Texts            []string `json:"texts" validate:"required,min=1,dive,required"`
}

// ReadRequest asks for the best match of a query inside a namespace.
type ReadRequest struct {
	Version          Version `json:"version"`
	TenantName       string  `json:"tenant_name" validate:"required"`
	OrganizationName string  `json:"organization_name" validate:"required"`
	NamespaceName    string  `json:"namespace_name" validate:"required"`
	QueryText        string  `json:"query_text" validate:"required"`
	ResultCount      int     `json:"result_count" validate:"min=1"`
}

// UpdateRequest adds texts to, or replaces the texts of, a namespace.
type UpdateRequest struct {
	Version          Version    `json:"version"`
	Mode             UpdateMode `json:"mode" validate:"required"`
	TenantName       string     `json:"tenant_name" validate:"required"`
	OrganizationName string     `json:"organization_name" validate:"required"`
	NamespaceName    string     `json:"namespace_name" validate:"required"`
	Texts            []string   `json:"texts" validate:"required,min=1,dive,required"`
}

// DeleteRequest removes a tenant, organization or namespace.
type DeleteRequest struct {
	Version          Version     `json:"version"`
	Scope            DeleteScope `json:"scope" validate:"required"`
	TenantName       string      `json:"tenant_name" validate:"required"`
	OrganizationName string      `json:"organization_name" validate:"required_unless=Scope 1"`
	NamespaceName    string      `json:"namespace_name" validate:"required_if=Scope 3"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of a request. Failures wrap
// vault.ErrInvalidRequest.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", vault.ErrInvalidRequest, err)
	}
	return nil
}
