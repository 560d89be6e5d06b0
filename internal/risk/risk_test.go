package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cobabot-go/internal/execution"
)

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) Submit(ctx context.Context, order execution.Order) (execution.Fill, error) {
	args := m.Called(ctx, order)
	if fn, ok := args.Get(0).(func(execution.Order) execution.Fill); ok {
		return fn(order), args.Error(1)
	}
	return args.Get(0).(execution.Fill), args.Error(1)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func filled(order execution.Order) execution.Fill {
	return execution.Fill{OrderID: "1", Symbol: order.Symbol, Side: order.Side, Amount: order.Amount, Price: order.Price}
}

// newController returns a controller whose submitter confirms every order.
func newController(t *testing.T) (*Controller, *mockSubmitter) {
	t.Helper()
	sub := new(mockSubmitter)
	sub.On("Submit", mock.Anything, mock.Anything).Return(filled, nil).Maybe()
	c, err := NewController("BTC/IDR", DefaultLimits(), sub, zerolog.Nop())
	require.NoError(t, err)
	c.OnNewDay(DateOf(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	return c, sub
}

func TestRequestBuySizesByNotional(t *testing.T) {
	sub := new(mockSubmitter)
	var placed execution.Order
	sub.On("Submit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		placed = args.Get(1).(execution.Order)
	}).Return(execution.Fill{OrderID: "7"}, nil).Once()

	c, err := NewController("BTC/IDR", DefaultLimits(), sub, zerolog.Nop())
	require.NoError(t, err)

	fill, err := c.RequestBuy(context.Background(), d("30000000"))
	require.NoError(t, err)
	assert.Equal(t, "7", fill.OrderID)

	assert.Equal(t, execution.Buy, placed.Side)
	assert.Equal(t, "BTC/IDR", placed.Symbol)
	assert.True(t, placed.Amount.Equal(d("0.00333333")), "amount %s", placed.Amount)
	assert.True(t, placed.Notional.Equal(d("100000")))

	state := c.Snapshot()
	assert.True(t, state.Position.InPosition)
	assert.True(t, state.Position.Entry.Valid)
	assert.True(t, state.Position.Entry.Decimal.Equal(d("30000000")))
	assert.Equal(t, 1, state.Daily.Count)
}

func TestRequestSellSizesByEntry(t *testing.T) {
	c, sub := newController(t)
	_, err := c.RequestBuy(context.Background(), d("100"))
	require.NoError(t, err)

	_, err = c.RequestSell(context.Background(), d("110"))
	require.NoError(t, err)

	sell := sub.Calls[len(sub.Calls)-1].Arguments.Get(1).(execution.Order)
	assert.Equal(t, execution.Sell, sell.Side)
	assert.True(t, sell.Amount.Equal(d("1000")), "sell amount %s", sell.Amount)
	assert.True(t, sell.Price.Equal(d("110")))

	state := c.Snapshot()
	assert.False(t, state.Position.InPosition)
	assert.False(t, state.Position.Entry.Valid)
	assert.Equal(t, 1, state.Daily.Count, "sells do not count against the daily cap")
}

func TestStopLossThreshold(t *testing.T) {
	cases := []struct {
		price string
		want  Exit
	}{
		{"97.9", ExitStopLoss},
		{"98", ExitStopLoss},
		{"98.1", ExitNone},
		{"102.9", ExitNone},
		{"103", ExitTakeProfit},
		{"103.1", ExitTakeProfit},
	}
	for _, tc := range cases {
		t.Run(tc.price, func(t *testing.T) {
			c, _ := newController(t)
			_, err := c.RequestBuy(context.Background(), d("100"))
			require.NoError(t, err)

			exit, err := c.CheckStopLossTakeProfit(context.Background(), d(tc.price))
			require.NoError(t, err)
			assert.Equal(t, tc.want, exit)
			assert.Equal(t, tc.want == ExitNone, c.InPosition())
		})
	}
}

func TestCheckStopLossTakeProfitFlatIsNoop(t *testing.T) {
	c, sub := newController(t)
	exit, err := c.CheckStopLossTakeProfit(context.Background(), d("1"))
	require.NoError(t, err)
	assert.Equal(t, ExitNone, exit)
	sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestRequestBuyRejectedAtDailyCap(t *testing.T) {
	c, sub := newController(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.RequestBuy(ctx, d("100"))
		require.NoError(t, err)
		_, err = c.RequestSell(ctx, d("100"))
		require.NoError(t, err)
	}
	calls := len(sub.Calls)
	before := c.Snapshot()

	_, err := c.RequestBuy(ctx, d("100"))
	assert.ErrorIs(t, err, ErrDailyLimitReached)
	assert.Len(t, sub.Calls, calls, "no order submitted")
	assert.Equal(t, before, c.Snapshot())
	assert.False(t, c.CanBuy())
}

func TestPositionGating(t *testing.T) {
	c, sub := newController(t)
	ctx := context.Background()

	_, err := c.RequestSell(ctx, d("100"))
	assert.ErrorIs(t, err, ErrNotInPosition)
	sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	_, err = c.RequestBuy(ctx, d("100"))
	require.NoError(t, err)
	before := c.Snapshot()

	_, err = c.RequestBuy(ctx, d("90"))
	assert.ErrorIs(t, err, ErrAlreadyInPosition)
	assert.Equal(t, before, c.Snapshot())
	sub.AssertNumberOfCalls(t, "Submit", 1)
}

func TestOnNewDayResetsOncePerDate(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()
	_, err := c.RequestBuy(ctx, d("100"))
	require.NoError(t, err)
	_, err = c.RequestSell(ctx, d("100"))
	require.NoError(t, err)
	_, err = c.RequestBuy(ctx, d("100"))
	require.NoError(t, err)
	require.Equal(t, 2, c.Snapshot().Daily.Count)

	sameDay := DateOf(time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC))
	c.OnNewDay(sameDay)
	c.OnNewDay(sameDay)
	assert.Equal(t, 2, c.Snapshot().Daily.Count)

	next := DateOf(time.Date(2024, 5, 2, 0, 0, 1, 0, time.UTC))
	c.OnNewDay(next)
	assert.Equal(t, 0, c.Snapshot().Daily.Count)
	assert.Equal(t, next, c.Snapshot().Daily.AsOf)
	assert.True(t, c.InPosition(), "day roll does not touch the position")

	_, err = c.RequestSell(ctx, d("100"))
	require.NoError(t, err)
	_, err = c.RequestBuy(ctx, d("100"))
	require.NoError(t, err)
	c.OnNewDay(next)
	assert.Equal(t, 1, c.Snapshot().Daily.Count)
}

func TestGatewayFailureLeavesStateUnchanged(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("Submit", mock.Anything, mock.Anything).Return(execution.Fill{}, errors.New("503 from venue"))
	c, err := NewController("BTC/IDR", DefaultLimits(), sub, zerolog.Nop())
	require.NoError(t, err)
	before := c.Snapshot()

	_, err = c.RequestBuy(context.Background(), d("30000000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, execution.ErrExecution)
	assert.Equal(t, before, c.Snapshot())
}

func TestSellFailureKeepsPosition(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("Submit", mock.Anything, mock.MatchedBy(func(o execution.Order) bool { return o.Side == execution.Buy })).
		Return(execution.Fill{OrderID: "b"}, nil)
	sub.On("Submit", mock.Anything, mock.MatchedBy(func(o execution.Order) bool { return o.Side == execution.Sell })).
		Return(execution.Fill{}, execution.ErrExecution)
	c, err := NewController("BTC/IDR", DefaultLimits(), sub, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.RequestBuy(context.Background(), d("100"))
	require.NoError(t, err)
	before := c.Snapshot()

	exit, err := c.CheckStopLossTakeProfit(context.Background(), d("90"))
	assert.ErrorIs(t, err, execution.ErrExecution)
	assert.Equal(t, ExitNone, exit)
	assert.Equal(t, before, c.Snapshot())
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())

	l := DefaultLimits()
	l.MaxDailyTrades = 0
	assert.ErrorIs(t, l.Validate(), ErrInvalidLimits)

	l = DefaultLimits()
	l.Notional = decimal.Zero
	assert.ErrorIs(t, l.Validate(), ErrInvalidLimits)

	_, err := NewController("BTC/IDR", l, new(mockSubmitter), zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidLimits)
}

func TestAllow(t *testing.T) {
	limits := DefaultLimits()
	if !limits.Allow(2) {
		t.Fatalf("expected count under limit to pass")
	}
	if limits.Allow(3) {
		t.Fatalf("expected count at limit to fail")
	}
}
