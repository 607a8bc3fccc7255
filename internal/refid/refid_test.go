package refid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	ref := New(PurposeDeposit, "U1")

	parsed, err := Parse(ref.String())
	require.NoError(t, err)

	assert.Equal(t, PurposeDeposit, parsed.Purpose)
	assert.Equal(t, "U1", parsed.OwnerID)
	assert.Equal(t, ref.Token, parsed.Token)
}

func TestNewGeneratesUniqueTokens(t *testing.T) {
	a := New(PurposeDeposit, "U1")
	b := New(PurposeDeposit, "U1")

	assert.NotEqual(t, a.Token, b.Token)
	assert.NotContains(t, a.Token, delimiter)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "too few parts", input: "deposito_U1"},
		{name: "too many parts", input: "deposito_U1_abc_extra"},
		{name: "empty owner", input: "deposito__abc"},
		{name: "empty purpose", input: "_U1_abc"},
		{name: "empty token", input: "deposito_U1_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestParseKeepsGatewayExample(t *testing.T) {
	parsed, err := Parse("deposito_U1_abc123")
	require.NoError(t, err)
	assert.Equal(t, "U1", parsed.OwnerID)
}
