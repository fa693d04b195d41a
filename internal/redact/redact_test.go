package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedKinds []Kind
	}{
		{name: "plain account id", input: "acct-1", expectedKinds: nil},
		{name: "card number", input: "4532015112830366", expectedKinds: []Kind{KindCardNumber}},
		{name: "grouped card number", input: "pay 4111 1111 1111 1111 now", expectedKinds: []Kind{KindCardNumber}},
		{name: "fails luhn", input: "4111111111111112", expectedKinds: nil},
		{name: "email", input: "wallet ops@example.com", expectedKinds: []Kind{KindEmail}},
		{name: "iban", input: "GB82WEST12345698765432", expectedKinds: []Kind{KindIBAN}},
		{
			name:          "ordered by position",
			input:         "from ops@example.com to 4111111111111111",
			expectedKinds: []Kind{KindEmail, KindCardNumber},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections := Detect(tt.input)
			var kinds []Kind
			for _, d := range detections {
				kinds = append(kinds, d.Kind)
			}
			assert.Equal(t, tt.expectedKinds, kinds)
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "nothing to mask", input: "insufficient funds", expected: "insufficient funds"},
		{name: "card keeps last four", input: "card 4111111111111111 declined", expected: "card ************1111 declined"},
		{name: "grouped card", input: "4111-1111-1111-1111", expected: "************1111"},
		{name: "email", input: "notify ops@example.com", expected: "notify [EMAIL_REDACTED]"},
		{name: "iban", input: "GB82WEST12345698765432", expected: "******************5432"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Text(tt.input))
		})
	}
}

func TestAccount(t *testing.T) {
	assert.Equal(t, "acct-1", Account("acct-1"))
	assert.Equal(t, "wallet_2", Account("wallet_2"))

	masked := Account("4532015112830366")
	require.Len(t, masked, 16)
	assert.Equal(t, "************0366", masked)
}

func TestLuhnCheck(t *testing.T) {
	assert.True(t, luhnCheck("4532015112830366"))
	assert.True(t, luhnCheck("4111 1111 1111 1111"))
	assert.False(t, luhnCheck("4111111111111112"))
	assert.False(t, luhnCheck("123"))
}
