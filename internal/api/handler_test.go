package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akshaysangma/irec-fractionalizer/internal/catalog"
	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/mocks"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/akshaysangma/irec-fractionalizer/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type apiFixture struct {
	gw     *mocks.MockChainGateway
	router *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	contracts, err := connector.NewContracts(
		"0x00000000000000000000000000000000000000c1",
		"0x00000000000000000000000000000000000000c2",
		"0x00000000000000000000000000000000000000c3")
	require.NoError(t, err)

	cat, err := catalog.New([]model.Certificate{
		{ID: "cert-12345", Name: "Solar Farm Alpha", Source: "Solar", Location: "Turkana County, Kenya", Amount: 1000, Status: model.CertificateVerified},
	})
	require.NoError(t, err)

	gw := mocks.NewMockChainGateway(testAccount)
	gw.SetRead(connector.MethodMintedCount, big.NewInt(0))
	gw.SetRead(connector.MethodTokenPrice, big.NewInt(10_000_000_000_000_000))
	gw.OnConfirm = func(m *mocks.MockChainGateway, method string) {
		if method == connector.MethodMint {
			m.SetReadLocked(connector.MethodMintedCount, big.NewInt(1))
		}
	}

	logger := zap.NewNop()
	pub := mocks.NewMockPublisher(nil)

	tokenization, err := service.NewTokenizationService(gw, contracts, cat, pub,
		&config.TokenizationConfig{ReserveSeed: "1000", Decimals: 18}, logger)
	require.NoError(t, err)

	h := NewHandler(cat,
		tokenization,
		service.NewPurchaseService(gw, contracts, pub, logger),
		service.NewHoldingsService(gw, nil, contracts, &config.HistoryConfig{Source: "contract"}, logger),
		logger)

	return &apiFixture{gw: gw, router: NewRouter(h, logger)}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

const tokenizationBody = `{
	"certificate_id": "cert-12345",
	"token_name": "Solar Farm Alpha Fractions",
	"token_symbol": "SFA",
	"fraction_count": 1000,
	"fraction_price": "0.01",
	"min_purchase_amount": 1,
	"royalty_percentage": "2",
	"trading_fee_percentage": "1"
}`

func TestListCertificates(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/certificates", "")
	require.Equal(t, http.StatusOK, w.Code)

	var certs []model.Certificate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &certs))
	require.Len(t, certs, 1)
	assert.Equal(t, "cert-12345", certs[0].ID)
}

func TestCreateTokenization(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/tokenizations", tokenizationBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result service.PipelineResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, int64(0), result.TokenID.Int64())
	assert.Equal(t, "10000000000000000", result.UnitPrice.String())
	assert.Len(t, result.Steps, 4)
}

func TestCreateTokenization_ValidationError(t *testing.T) {
	f := newAPIFixture(t)

	body := `{"certificate_id":"cert-12345","token_name":"X","token_symbol":"TOOLONG","fraction_count":10,"fraction_price":"0.01","min_purchase_amount":11}`
	w := f.do(t, http.MethodPost, "/api/v1/tokenizations", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "invalid_request", resp.Code)
	assert.Contains(t, resp.Fields, "token_symbol")
	assert.Contains(t, resp.Fields, "min_purchase_amount")
	assert.False(t, resp.SideEffects)
	assert.Empty(t, f.gw.Calls())
}

func TestCreateTokenization_BadBody(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/tokenizations", `{"fraction_count": "many"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_body", decodeError(t, w).Code)
}

func TestCreateTokenization_StepFailureAndResume(t *testing.T) {
	f := newAPIFixture(t)
	f.gw.FailReceipt(connector.MethodSetTokenPrice, connector.ErrReceiptTimeout)

	w := f.do(t, http.MethodPost, "/api/v1/tokenizations", tokenizationBody)
	require.Equal(t, http.StatusBadGateway, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "price_configuration_failed", resp.Code)
	assert.Equal(t, string(service.StepConfigurePrice), resp.Step)
	assert.Equal(t, string(service.StepApproveAndDeposit), resp.LastConfirmedStep)
	assert.True(t, resp.SideEffects)
	require.NotNil(t, resp.PendingTx)
	require.NotNil(t, resp.Checkpoint)

	f.gw.FailReceipt(connector.MethodSetTokenPrice, nil)

	checkpoint, err := json.Marshal(resp.Checkpoint)
	require.NoError(t, err)
	body := `{"request":` + tokenizationBody + `,"checkpoint":` + string(checkpoint) + `}`

	w = f.do(t, http.MethodPost, "/api/v1/tokenizations/resume", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, f.gw.CallCount(mocks.OpSubmit, connector.MethodMint))
	assert.Equal(t, 1, f.gw.CallCount(mocks.OpSubmit, connector.MethodSetTokenPrice),
		"the pending price transaction is adopted, not sent again")

	var result service.PipelineResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, resp.PendingTx.Hash, result.PriceTx.Hash)
}

func TestCreateTokenization_ClientDisconnect(t *testing.T) {
	f := newAPIFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gw.OnAwait = func(context.Context, *model.TxHandle) error {
		cancel()
		return nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokenizations", bytes.NewBufferString(tokenizationBody)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result service.PipelineResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Steps, 4)
}

func TestCreateTokenization_SimulationFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.gw.FailSimulate(connector.MethodMint, &connector.SimulationError{Contract: "certificate", Method: "mint", Reason: "paused"})

	w := f.do(t, http.MethodPost, "/api/v1/tokenizations", tokenizationBody)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "mint_failed", resp.Code)
	assert.False(t, resp.SideEffects)
	assert.Contains(t, resp.Message, "paused")
}

func TestCreatePurchase(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/purchases", `{"amount": 5}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var result service.PurchaseResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "50000000000000000", result.TotalCost.String())
	assert.Nil(t, result.Receipt)
}

func TestCreatePurchase_Wait(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/purchases", `{"amount": 5, "wait": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result service.PurchaseResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Receipt)
}

func TestCreatePurchase_InvalidAmount(t *testing.T) {
	f := newAPIFixture(t)

	for _, body := range []string{`{"amount": 0}`, `{"amount": -1}`, `{}`} {
		w := f.do(t, http.MethodPost, "/api/v1/purchases", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid_amount", decodeError(t, w).Code)
	}
	assert.Empty(t, f.gw.Calls())
}

func TestCreatePurchase_NoWallet(t *testing.T) {
	f := newAPIFixture(t)
	f.gw.AccountErr = connector.ErrNoWallet

	w := f.do(t, http.MethodPost, "/api/v1/purchases", `{"amount": 1}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no_wallet", decodeError(t, w).Code)
}

func TestGetHoldings(t *testing.T) {
	f := newAPIFixture(t)
	f.gw.SetRead(connector.MethodBalanceOf, big.NewInt(40))
	f.gw.SetRead(connector.MethodPercentOwnership, big.NewInt(400))

	w := f.do(t, http.MethodGet, "/api/v1/holdings", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary model.AccountSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, testAccount.Hex(), summary.Address)
	assert.Equal(t, int64(400), summary.PercentOwnership.Int64())
}

func TestListTransfers_ReadFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.gw.FailRead(connector.MethodGetTransfers, connector.ErrRead)

	w := f.do(t, http.MethodGet, "/api/v1/transfers", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "chain_read_failed", decodeError(t, w).Code)
}

func TestPing(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
