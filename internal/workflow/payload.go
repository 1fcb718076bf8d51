package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Payload is the typed body of an approval request. Each request type has exactly one payload type.
type Payload interface {
	RequestType() RequestType
	check() error
}

// VoidBillPayload asks to void an issued bill.
type VoidBillPayload struct {
	BillNo   string          `json:"bill_no" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3,uppercase"`
	Reason   string          `json:"reason" validate:"required"`
}

func (VoidBillPayload) RequestType() RequestType { return RequestVoidBill }

func (p VoidBillPayload) check() error {
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// ContractPayload asks to activate a customs contract.
type ContractPayload struct {
	ContractNo    string          `json:"contract_no" validate:"required"`
	CustomerName  string          `json:"customer_name" validate:"required"`
	Value         decimal.Decimal `json:"value"`
	Currency      string          `json:"currency" validate:"required,len=3,uppercase"`
	EffectiveFrom string          `json:"effective_from" validate:"omitempty,datetime=2006-01-02"`
	EffectiveTo   string          `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
}

func (ContractPayload) RequestType() RequestType { return RequestContract }

func (p ContractPayload) check() error {
	if p.Value.IsNegative() {
		return fmt.Errorf("value must not be negative")
	}
	if p.EffectiveFrom != "" && p.EffectiveTo != "" && p.EffectiveTo < p.EffectiveFrom {
		return fmt.Errorf("effective_to is before effective_from")
	}
	return nil
}

type UserCreatePayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required"`
}

func (UserCreatePayload) RequestType() RequestType { return RequestUserCreate }
func (UserCreatePayload) check() error             { return nil }

type RoleChangePayload struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	FromRole string `json:"from_role" validate:"required"`
	ToRole   string `json:"to_role" validate:"required,nefield=FromRole"`
}

func (RoleChangePayload) RequestType() RequestType { return RequestRoleChange }
func (RoleChangePayload) check() error             { return nil }

type PermissionChangePayload struct {
	RoleName string   `json:"role_name" validate:"required"`
	Grant    []string `json:"grant" validate:"dive,required"`
	Revoke   []string `json:"revoke" validate:"dive,required"`
}

func (PermissionChangePayload) RequestType() RequestType { return RequestPermissionChange }

func (p PermissionChangePayload) check() error {
	if len(p.Grant) == 0 && len(p.Revoke) == 0 {
		return fmt.Errorf("grant or revoke must list at least one permission")
	}
	return nil
}

// DecodePayload decodes raw JSON into the payload type of t and validates it.
func DecodePayload(t RequestType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case RequestVoidBill:
		p = &VoidBillPayload{}
	case RequestContract:
		p = &ContractPayload{}
	case RequestUserCreate:
		p = &UserCreatePayload{}
	case RequestRoleChange:
		p = &RoleChangePayload{}
	case RequestPermissionChange:
		p = &PermissionChangePayload{}
	default:
		return nil, fmt.Errorf("%w: unknown request type %q", ErrValidation, t)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: payload is required", ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %v", ErrValidation, t, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, t, err)
	}
	if err := p.check(); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, t, err)
	}
	return p, nil
}
