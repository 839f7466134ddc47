package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/mocks"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var centPrice = big.NewInt(10_000_000_000_000_000)

func newPurchaseFixture(t *testing.T) (*PurchaseService, *mocks.MockChainGateway, *mocks.MockPublisher) {
	t.Helper()

	gw := mocks.NewMockChainGateway(testAccount)
	gw.SetRead(connector.MethodTokenPrice, centPrice)
	pub := mocks.NewMockPublisher(nil)

	return NewPurchaseService(gw, testContracts(t), pub, zap.NewNop()), gw, pub
}

func purchaseSubmit(t *testing.T, gw *mocks.MockChainGateway) mocks.Call {
	t.Helper()

	for _, c := range gw.Calls() {
		if c.Op == mocks.OpSubmit && c.Method == connector.MethodPurchaseReserve {
			return c
		}
	}
	t.Fatal("purchase was not submitted")
	return mocks.Call{}
}

func TestPurchaseService_Execute(t *testing.T) {
	svc, gw, pub := newPurchaseFixture(t)

	result, err := svc.Execute(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.Amount)
	assert.Equal(t, "10000000000000000", result.UnitPrice.String())
	assert.Equal(t, "50000000000000000", result.TotalCost.String())
	require.NotNil(t, result.Tx)
	assert.Nil(t, result.Receipt)

	call := purchaseSubmit(t, gw)
	assert.Equal(t, "50000000000000000", call.Value.String())
	assert.Equal(t, []interface{}{big.NewInt(5)}, call.Args)
	assert.Equal(t, "marketplace", call.Contract)

	assert.Zero(t, gw.CallCount(mocks.OpAwait, ""))
	assert.Equal(t, []model.EventType{model.EventPurchaseSubmitted}, pub.Types())
	assert.Equal(t, result.Tx.Hash, pub.Events()[0].TxHash)
}

func TestPurchaseService_Execute_TotalCost(t *testing.T) {
	svc, gw, _ := newPurchaseFixture(t)

	result, err := svc.Execute(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", result.TotalCost.String())
	assert.Equal(t, "10000000000000000000", purchaseSubmit(t, gw).Value.String())
}

func TestPurchaseService_Execute_ReadsPriceEveryTime(t *testing.T) {
	svc, gw, _ := newPurchaseFixture(t)

	_, err := svc.Execute(context.Background(), 1)
	require.NoError(t, err)

	gw.SetRead(connector.MethodTokenPrice, big.NewInt(3))
	result, err := svc.Execute(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(6), result.TotalCost.Int64())
	assert.Equal(t, 2, gw.CallCount(mocks.OpRead, connector.MethodTokenPrice))
}

func TestPurchaseService_Execute_InvalidAmount(t *testing.T) {
	for _, amount := range []int64{0, -1} {
		svc, gw, pub := newPurchaseFixture(t)

		result, err := svc.Execute(context.Background(), amount)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Empty(t, gw.Calls(), "amount %d reached the gateway", amount)
		assert.Empty(t, pub.Events())
	}
}

func TestPurchaseService_Execute_PriceReadFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(gw *mocks.MockChainGateway)
	}{
		{
			name:  "read error",
			setup: func(gw *mocks.MockChainGateway) { gw.FailRead(connector.MethodTokenPrice, connector.ErrRead) },
		},
		{
			name:  "price not configured",
			setup: func(gw *mocks.MockChainGateway) { gw.SetRead(connector.MethodTokenPrice, big.NewInt(0)) },
		},
		{
			name:  "unexpected output",
			setup: func(gw *mocks.MockChainGateway) { gw.SetRead(connector.MethodTokenPrice, "0.01") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gw, pub := newPurchaseFixture(t)
			tt.setup(gw)

			_, err := svc.Execute(context.Background(), 5)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPriceRead)

			serr, ok := AsStepError(err)
			require.True(t, ok)
			assert.False(t, serr.SideEffects)
			assert.Zero(t, gw.CallCount(mocks.OpSimulate, ""))
			assert.Equal(t, []model.EventType{model.EventPurchaseFailed}, pub.Types())
		})
	}
}

func TestPurchaseService_Execute_SimulationFailure(t *testing.T) {
	svc, gw, _ := newPurchaseFixture(t)
	gw.FailSimulate(connector.MethodPurchaseReserve, &connector.SimulationError{
		Contract: "marketplace",
		Method:   connector.MethodPurchaseReserve,
		Reason:   "Insufficient reserve",
	})

	_, err := svc.Execute(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPurchaseSimulation)
	assert.ErrorIs(t, err, connector.ErrSimulation)
	assert.Contains(t, err.Error(), "Insufficient reserve")

	serr, _ := AsStepError(err)
	require.NotNil(t, serr)
	assert.Equal(t, StepPurchase, serr.Step)
	assert.False(t, serr.SideEffects)
	assert.Zero(t, gw.CallCount(mocks.OpSubmit, ""))
}

func TestPurchaseService_Execute_SubmitFailure(t *testing.T) {
	svc, gw, _ := newPurchaseFixture(t)
	gw.FailSubmit(connector.MethodPurchaseReserve, errors.New("insufficient funds for gas * price + value"))

	_, err := svc.Execute(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPurchaseSubmit)
	assert.False(t, errors.Is(err, ErrPurchaseSimulation))

	serr, _ := AsStepError(err)
	require.NotNil(t, serr)
	assert.Nil(t, serr.PendingTx)
}

func TestPurchaseService_ExecuteAndWait(t *testing.T) {
	svc, gw, _ := newPurchaseFixture(t)

	result, err := svc.ExecuteAndWait(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, result.Receipt)
	assert.True(t, result.Receipt.Status)
	assert.Equal(t, result.Tx.Hash, result.Receipt.TxHash)
	assert.Equal(t, 1, gw.CallCount(mocks.OpAwait, connector.MethodPurchaseReserve))
}

func TestPurchaseService_ExecuteAndWait_CancelledDuringWait(t *testing.T) {
	svc, gw, pub := newPurchaseFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.OnAwait = func(context.Context, *model.TxHandle) error {
		cancel()
		return nil
	}

	result, err := svc.ExecuteAndWait(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, result.Receipt)
	assert.True(t, result.Receipt.Status)
	assert.Equal(t, []model.EventType{model.EventPurchaseSubmitted}, pub.Types())
}

func TestPurchaseService_ExecuteAndWait_Timeout(t *testing.T) {
	svc, gw, pub := newPurchaseFixture(t)
	gw.FailReceipt(connector.MethodPurchaseReserve, connector.ErrReceiptTimeout)

	_, err := svc.ExecuteAndWait(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPurchaseSubmit)
	assert.ErrorIs(t, err, connector.ErrReceiptTimeout)

	serr, ok := AsStepError(err)
	require.True(t, ok)
	assert.True(t, serr.SideEffects)
	require.NotNil(t, serr.PendingTx)
	assert.Equal(t, "50000000000000000", serr.PendingTx.Value.String())

	assert.Equal(t, []model.EventType{model.EventPurchaseSubmitted, model.EventPurchaseFailed}, pub.Types())
}
