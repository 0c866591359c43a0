package web

import (
	"testing"

	"cryptex/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAmountError(t *testing.T) {
	cases := map[string]error{
		"0.5":        nil,
		" 100000 ":   nil,
		"0.0000001":  nil,
		"abc":        errNotDecimal,
		"0.00000001": models.ErrAmountTooPrecise,
		"0":          models.ErrAmountOutOfRange,
		"100000.1":   models.ErrAmountOutOfRange,
	}
	for in, want := range cases {
		err := amountError(in)
		if want == nil {
			assert.NoError(t, err, in)
			continue
		}
		assert.ErrorIs(t, err, want, in)
		assert.NotEmpty(t, amountMessages[err], in)
	}
}
