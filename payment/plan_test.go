package payment_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

var planAt = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func snap(status payment.Status, price, paid int64) payment.Snapshot {
	return payment.Snapshot{
		Price:      decimal.NewFromInt(price),
		PaidAmount: decimal.NewFromInt(paid),
		Currency:   ledger.CurrencyEUR,
		Status:     status,
	}
}

func change(old *payment.Snapshot, cur payment.Snapshot) payment.Change {
	return payment.Change{Ref: ledger.EventRef("ev-1"), TravelerID: "tr-1", AgencyID: "ag-1", Old: old, New: cur}
}

func ptr(s payment.Snapshot) *payment.Snapshot { return &s }

type opView struct {
	Kind   payment.OpKind
	Slot   ledger.SlotKind
	Type   ledger.TransactionType
	Amount string
}

func view(ops []payment.Op) []opView {
	out := make([]opView, len(ops))
	for i, op := range ops {
		amt := ""
		if op.Kind != payment.OpDelete {
			amt = op.Amount.Value.String()
		}
		out[i] = opView{Kind: op.Kind, Slot: op.Slot.Kind, Type: op.Type, Amount: amt}
	}
	return out
}

// =============================================================================
// NO-OPS
// =============================================================================

func TestPlan_SameStateIsNoop(t *testing.T) {
	cases := []payment.Snapshot{
		snap(payment.Unpaid, 100, 0),
		snap(payment.PartiallyPaid, 100, 40),
		snap(payment.Paid, 100, 100),
		snap(payment.Refunded, 100, 0),
	}
	for _, s := range cases {
		t.Run(string(s.Status), func(t *testing.T) {
			ops, err := payment.Plan(change(ptr(s), s), planAt)
			require.NoError(t, err)
			assert.Empty(t, ops)
		})
	}
}

func TestPlan_NotPaidIsUnpaid(t *testing.T) {
	ops, err := payment.Plan(change(ptr(snap(payment.NotPaid, 100, 0)), snap(payment.Unpaid, 100, 0)), planAt)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestPlan_PriceChangeOnPaidIsRejected(t *testing.T) {
	// GIVEN: a fully paid traveler
	// WHEN: the price changes but the status stays paid
	_, err := payment.Plan(change(ptr(snap(payment.Paid, 100, 100)), snap(payment.Paid, 150, 150)), planAt)

	// THEN: an explicit top-up or refund flow is required
	require.ErrorIs(t, err, payment.ErrPriceChangeOnPaid)
	assert.True(t, payment.IsClientError(err))
}

func TestPlan_RejectsInvalidPartialPayment(t *testing.T) {
	for _, paid := range []int64{0, 100, 120} {
		_, err := payment.Plan(change(nil, snap(payment.PartiallyPaid, 100, paid)), planAt)
		assert.ErrorIs(t, err, payment.ErrInvalidSnapshot, "paid=%d", paid)
	}
}

// =============================================================================
// CREATION
// =============================================================================

func TestPlan_Creation(t *testing.T) {
	tests := []struct {
		name string
		snap payment.Snapshot
		want []opView
	}{
		{"unpaid", snap(payment.Unpaid, 200, 0), []opView{
			{payment.OpCreate, ledger.SlotBase, ledger.TxDebt, "200"},
		}},
		{"paid", snap(payment.Paid, 200, 0), []opView{
			{payment.OpCreate, ledger.SlotBase, ledger.TxIncome, "200"},
		}},
		{"partially paid", snap(payment.PartiallyPaid, 500, 200), []opView{
			{payment.OpCreate, ledger.SlotBase, ledger.TxIncome, "200"},
			{payment.OpCreate, ledger.SlotDebt, ledger.TxDebt, "300"},
		}},
		{"refunded", snap(payment.Refunded, 200, 0), []opView{}},
		{"zero price", snap(payment.Unpaid, 0, 0), []opView{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := payment.Plan(change(nil, tt.snap), planAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, view(ops))
		})
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestPlan_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		old, cur payment.Snapshot
		want     []opView
	}{
		{
			"unpaid to paid",
			snap(payment.Unpaid, 200, 0), snap(payment.Paid, 200, 200),
			[]opView{
				{payment.OpDelete, ledger.SlotBase, "", ""},
				{payment.OpDelete, ledger.SlotDebt, "", ""},
				{payment.OpCreate, ledger.SlotBase, ledger.TxIncome, "200"},
			},
		},
		{
			"partially paid to paid books the final installment",
			snap(payment.PartiallyPaid, 500, 200), snap(payment.Paid, 500, 500),
			[]opView{
				{payment.OpDelete, ledger.SlotDebt, "", ""},
				{payment.OpCreate, ledger.SlotFinal, ledger.TxIncome, "300"},
			},
		},
		{
			"unpaid to partially paid",
			snap(payment.Unpaid, 500, 0), snap(payment.PartiallyPaid, 500, 100),
			[]opView{
				{payment.OpDelete, ledger.SlotBase, "", ""},
				{payment.OpCreate, ledger.SlotBase, ledger.TxIncome, "100"},
				{payment.OpUpsertDebt, ledger.SlotDebt, ledger.TxDebt, "400"},
			},
		},
		{
			"larger partial payment",
			snap(payment.PartiallyPaid, 500, 100), snap(payment.PartiallyPaid, 500, 350),
			[]opView{
				{payment.OpCreate, ledger.SlotBase, ledger.TxIncome, "250"},
				{payment.OpUpsertDebt, ledger.SlotDebt, ledger.TxDebt, "150"},
			},
		},
		{
			"smaller partial payment refunds the difference",
			snap(payment.PartiallyPaid, 500, 350), snap(payment.PartiallyPaid, 500, 300),
			[]opView{
				{payment.OpCreate, ledger.SlotRefund, ledger.TxOutcome, "50"},
				{payment.OpUpsertDebt, ledger.SlotDebt, ledger.TxDebt, "200"},
			},
		},
		{
			"paid to partially paid",
			snap(payment.Paid, 500, 500), snap(payment.PartiallyPaid, 500, 400),
			[]opView{
				{payment.OpCreate, ledger.SlotRefund, ledger.TxOutcome, "100"},
				{payment.OpUpsertDebt, ledger.SlotDebt, ledger.TxDebt, "100"},
			},
		},
		{
			"price change while partially paid resizes the debt",
			snap(payment.PartiallyPaid, 500, 200), snap(payment.PartiallyPaid, 600, 200),
			[]opView{
				{payment.OpUpsertDebt, ledger.SlotDebt, ledger.TxDebt, "400"},
			},
		},
		{
			"partially paid to refunded",
			snap(payment.PartiallyPaid, 500, 200), snap(payment.Refunded, 500, 0),
			[]opView{
				{payment.OpCreate, ledger.SlotRefund, ledger.TxOutcome, "200"},
				{payment.OpDelete, ledger.SlotBase, "", ""},
				{payment.OpDelete, ledger.SlotDebt, "", ""},
			},
		},
		{
			"unpaid to refunded refunds nothing",
			snap(payment.Unpaid, 500, 0), snap(payment.Refunded, 500, 0),
			[]opView{
				{payment.OpDelete, ledger.SlotBase, "", ""},
				{payment.OpDelete, ledger.SlotDebt, "", ""},
			},
		},
		{
			"paid to unpaid reopens the full debt",
			snap(payment.Paid, 300, 300), snap(payment.Unpaid, 300, 0),
			[]opView{
				{payment.OpDelete, ledger.SlotBase, "", ""},
				{payment.OpDelete, ledger.SlotDebt, "", ""},
				{payment.OpCreate, ledger.SlotBase, ledger.TxDebt, "300"},
			},
		},
		{
			"unpaid price change",
			snap(payment.Unpaid, 300, 0), snap(payment.Unpaid, 350, 0),
			[]opView{
				{payment.OpUpsertDebt, ledger.SlotBase, ledger.TxDebt, "350"},
			},
		},
		{
			"refunded to paid",
			snap(payment.Refunded, 300, 0), snap(payment.Paid, 300, 300),
			[]opView{
				{payment.OpDelete, ledger.SlotDebt, "", ""},
				{payment.OpCreate, ledger.SlotBase, ledger.TxIncome, "300"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := payment.Plan(change(ptr(tt.old), tt.cur), planAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, view(ops))
		})
	}
}

func TestPlan_ExplicitRefundsUseAbsoluteValues(t *testing.T) {
	c := change(ptr(snap(payment.Paid, 300, 300)), snap(payment.Refunded, 300, 0))
	c.Refunds = []ledger.Amount{
		ledger.NewAmountFromInt(-100, ledger.CurrencyEUR),
		ledger.NewAmountFromInt(50, ledger.CurrencyUSD),
		ledger.NewAmountFromInt(0, ledger.CurrencyEUR),
	}

	ops, err := payment.Plan(c, planAt)
	require.NoError(t, err)
	require.Len(t, ops, 4)

	assert.Equal(t, ledger.TxOutcome, ops[0].Type)
	assert.Equal(t, "100", ops[0].Amount.Value.String())
	assert.Equal(t, ledger.CurrencyEUR, ops[0].Amount.Currency)
	assert.Equal(t, "50", ops[1].Amount.Value.String())
	assert.Equal(t, ledger.CurrencyUSD, ops[1].Amount.Currency)
	assert.NotEqual(t, ops[0].Slot, ops[1].Slot, "each refund gets its own slot")
}

func TestPlan_PositivePaymentFallsBackToPaymentSlot(t *testing.T) {
	ops, err := payment.Plan(change(ptr(snap(payment.PartiallyPaid, 500, 100)), snap(payment.PartiallyPaid, 500, 200)), planAt)
	require.NoError(t, err)
	require.NotEmpty(t, ops)
	require.NotNil(t, ops[0].Fallback)
	assert.Equal(t, ledger.PaymentSlot("tr-1", planAt), *ops[0].Fallback)
}
