package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateBalanced(t *testing.T) {
	amount := decimal.NewFromInt(42)
	assert.NoError(t, ValidateBalanced(TransferLines("a", "b", amount)))

	unbalanced := []LedgerEntryLine{
		{AccountID: "a", Direction: LedgerEntryDirectionCredit, Amount: amount},
		{AccountID: "b", Direction: LedgerEntryDirectionDebit, Amount: decimal.NewFromInt(41)},
	}
	assert.ErrorIs(t, ValidateBalanced(unbalanced), ErrUnbalancedEntry)

	unknown := []LedgerEntryLine{{AccountID: "a", Direction: "sideways", Amount: amount}}
	assert.ErrorIs(t, ValidateBalanced(unknown), ErrInvalidLineDirection)
}

func TestTransferLines(t *testing.T) {
	lines := TransferLines("payer", "payee", decimal.NewFromInt(5))
	if assert.Len(t, lines, 2) {
		assert.Equal(t, "payer", lines[0].AccountID)
		assert.Equal(t, LedgerEntryDirectionCredit, lines[0].Direction)
		assert.Equal(t, "payee", lines[1].AccountID)
		assert.Equal(t, LedgerEntryDirectionDebit, lines[1].Direction)
	}
}
