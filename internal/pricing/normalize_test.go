package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDeposit(t *testing.T) {
	tests := []struct {
		name     string
		deposit  string
		txType   string
		expected float64
	}{
		{name: "Plain number", deposit: "500", txType: "월세", expected: 500},
		{name: "Thousands separator", deposit: "5,000", txType: "전세", expected: 5000},
		{name: "Man unit with won", deposit: "5,000만원", txType: "전세", expected: 5000},
		{name: "Eok only", deposit: "3억", txType: "전세", expected: 30000},
		{name: "Eok and remainder", deposit: "1억 2,000", txType: "전세", expected: 12000},
		{name: "Fractional eok", deposit: "1.5억", txType: "매매", expected: 15000},
		{name: "Full-width digits", deposit: "１，０００", txType: "월세", expected: 1000},
		{name: "Empty", deposit: "", txType: "월세", expected: 0},
		{name: "Garbage", deposit: "협의", txType: "월세", expected: 0},
		{name: "Negative", deposit: "-100", txType: "월세", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDeposit(tt.deposit, "room-1", tt.txType)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestNormalizeDeposit_Pure(t *testing.T) {
	var f Func = NormalizeDeposit
	assert.Equal(t, f("2억", "a", "전세"), f("2억", "a", "전세"))
}
