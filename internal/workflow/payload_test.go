package workflow

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_VoidBill(t *testing.T) {
	p, err := DecodePayload(RequestVoidBill, json.RawMessage(`{"bill_no":"HBL-0042","amount":"1250.50","currency":"USD","reason":"duplicate"}`))
	require.NoError(t, err)

	vb, ok := p.(*VoidBillPayload)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1250.5").Equal(vb.Amount))
	assert.Equal(t, RequestVoidBill, p.RequestType())
}

func TestDecodePayload_Invalid(t *testing.T) {
	tests := []struct {
		name string
		t    RequestType
		raw  string
	}{
		{"empty", RequestVoidBill, ``},
		{"zero amount", RequestVoidBill, `{"bill_no":"B1","amount":"0","currency":"USD","reason":"x"}`},
		{"lowercase currency", RequestVoidBill, `{"bill_no":"B1","amount":"1","currency":"usd","reason":"x"}`},
		{"unknown field", RequestVoidBill, `{"bill_no":"B1","amount":"1","currency":"USD","reason":"x","note":"y"}`},
		{"contract dates reversed", RequestContract, `{"contract_no":"C1","customer_name":"ACME","value":"10","currency":"EUR","effective_from":"2026-02-01","effective_to":"2026-01-01"}`},
		{"bad email", RequestUserCreate, `{"username":"u","email":"nope","role":"staff"}`},
		{"same role", RequestRoleChange, `{"user_id":"8d3e1c1e-4a3f-4f43-9f43-3e8f5b7f0a11","from_role":"staff","to_role":"staff"}`},
		{"no permission changes", RequestPermissionChange, `{"role_name":"finance"}`},
		{"unknown type", RequestType("bogus"), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.t, json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDecodePayload_OtherTypes(t *testing.T) {
	_, err := DecodePayload(RequestContract, json.RawMessage(`{"contract_no":"C-77","customer_name":"ACME Freight","value":"90000","currency":"CNY","effective_from":"2026-01-01"}`))
	assert.NoError(t, err)

	_, err = DecodePayload(RequestPermissionChange, json.RawMessage(`{"role_name":"finance","grant":["approvals.approve"]}`))
	assert.NoError(t, err)
}

func TestSubjectRef_Validate(t *testing.T) {
	assert.NoError(t, SubjectRef{Kind: SubjectBill, ID: "B-1"}.Validate())
	assert.ErrorIs(t, SubjectRef{Kind: "ship", ID: "1"}.Validate(), ErrValidation)
	assert.ErrorIs(t, SubjectRef{Kind: SubjectBill, ID: " "}.Validate(), ErrValidation)
	assert.Equal(t, SubjectBill, RequestVoidBill.SubjectKind())
}
