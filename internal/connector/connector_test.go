package connector

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	certAddr   = "0x1000000000000000000000000000000000000001"
	tokenAddr  = "0x1000000000000000000000000000000000000002"
	marketAddr = "0x1000000000000000000000000000000000000003"
)

func TestNewContracts(t *testing.T) {
	contracts, err := NewContracts(certAddr, tokenAddr, marketAddr)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(marketAddr), contracts.Marketplace.Address)

	for ref, methods := range map[*ContractRef][]string{
		&contracts.Certificate: {MethodMint, MethodMintedCount, MethodOwnerOf},
		&contracts.Token:       {MethodAcquireOwnership, MethodApprove, MethodBalanceOf, MethodPercentOwnership, MethodGetTransfers},
		&contracts.Marketplace: {MethodDepositToReserve, MethodSetTokenPrice, MethodTokenPrice, MethodPurchaseReserve},
	} {
		for _, m := range methods {
			assert.Contains(t, ref.ABI.Methods, m, "%s is missing %s", ref.Name, m)
		}
	}

	assert.True(t, contracts.Marketplace.ABI.Methods[MethodPurchaseReserve].IsPayable())
	assert.Contains(t, contracts.Token.ABI.Events, EventTransfer)
}

func TestNewContracts_InvalidAddress(t *testing.T) {
	_, err := NewContracts("not-an-address", tokenAddr, marketAddr)
	assert.Error(t, err)
}

func TestPackPurchase(t *testing.T) {
	contracts, err := NewContracts(certAddr, tokenAddr, marketAddr)
	require.NoError(t, err)

	data, err := contracts.Marketplace.ABI.Pack(MethodPurchaseReserve, big.NewInt(5))
	require.NoError(t, err)
	assert.Len(t, data, 4+32)

	method, err := contracts.Marketplace.ABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, MethodPurchaseReserve, method.Name)
}

func TestUnpackTransfers(t *testing.T) {
	contracts, err := NewContracts(certAddr, tokenAddr, marketAddr)
	require.NoError(t, err)

	method := contracts.Token.ABI.Methods[MethodGetTransfers]
	type transfer struct {
		From      common.Address
		To        common.Address
		Amount    *big.Int
		Timestamp *big.Int
	}
	encoded, err := method.Outputs.Pack([]transfer{{
		From:      common.HexToAddress(marketAddr),
		To:        common.HexToAddress(certAddr),
		Amount:    big.NewInt(42),
		Timestamp: big.NewInt(1721001600),
	}})
	require.NoError(t, err)

	out, err := contracts.Token.ABI.Unpack(MethodGetTransfers, encoded)
	require.NoError(t, err)
	require.Len(t, out, 1)

	records, err := DecodeTransfers(out[0])
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, common.HexToAddress(marketAddr).Hex(), records[0].From)
	assert.Equal(t, int64(42), records[0].Amount.Int64())
	assert.Equal(t, uint64(1721001600), records[0].Timestamp)
}

type rpcDataError struct {
	data interface{}
}

func (e rpcDataError) Error() string          { return "execution reverted" }
func (e rpcDataError) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()

	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)

	payload, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, payload...))
}

func TestRevertReason(t *testing.T) {
	err := rpcDataError{data: encodeRevert(t, "reserve exhausted")}
	assert.Equal(t, "reserve exhausted", revertReason(err))

	assert.Empty(t, revertReason(errors.New("connection refused")))
	assert.Empty(t, revertReason(rpcDataError{data: 42}))
	assert.Empty(t, revertReason(rpcDataError{data: "0xzz"}))
}

func TestSimulationError(t *testing.T) {
	cause := rpcDataError{data: encodeRevert(t, "insufficient funds")}
	err := &SimulationError{Contract: "marketplace", Method: MethodPurchaseReserve, Reason: "insufficient funds", Err: cause}

	assert.ErrorIs(t, err, ErrSimulation)
	assert.Equal(t, "simulation of marketplace.purchaseFromReserve failed: execution reverted: insufficient funds", err.Error())

	bare := &SimulationError{Contract: "token", Method: MethodApprove}
	assert.ErrorIs(t, bare, ErrSimulation)
	assert.Equal(t, "simulation of token.approve failed", bare.Error())
}

type stubReader struct {
	out []interface{}
	err error
}

func (s stubReader) ActiveAccount(context.Context) (common.Address, error) {
	return common.Address{}, nil
}

func (s stubReader) ReadState(context.Context, ContractRef, string, ...interface{}) ([]interface{}, error) {
	return s.out, s.err
}

func (s stubReader) SimulateWrite(context.Context, ContractRef, string, common.Address, *big.Int, ...interface{}) (*PreparedCall, error) {
	return nil, errors.New("not implemented")
}

func (s stubReader) SubmitWrite(context.Context, *PreparedCall) (*model.TxHandle, error) {
	return nil, errors.New("not implemented")
}

func (s stubReader) AwaitReceipt(context.Context, *model.TxHandle) (*model.Receipt, error) {
	return nil, errors.New("not implemented")
}

func TestReadBigInt(t *testing.T) {
	ref := ContractRef{Name: "marketplace"}
	ctx := context.Background()

	v, err := ReadBigInt(ctx, stubReader{out: []interface{}{big.NewInt(7)}}, ref, MethodTokenPrice)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int64())

	_, err = ReadBigInt(ctx, stubReader{out: []interface{}{}}, ref, MethodTokenPrice)
	assert.ErrorIs(t, err, ErrRead)

	_, err = ReadBigInt(ctx, stubReader{out: []interface{}{"7"}}, ref, MethodTokenPrice)
	assert.ErrorIs(t, err, ErrRead)

	_, err = ReadBigInt(ctx, stubReader{err: ErrRead}, ref, MethodTokenPrice)
	assert.ErrorIs(t, err, ErrRead)
}

func TestLoadWallet(t *testing.T) {
	_, err := LoadWallet(&config.WalletConfig{})
	assert.ErrorIs(t, err, ErrNoWallet)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	wallet, err := LoadWallet(&config.WalletConfig{PrivateKey: hexutil.Encode(crypto.FromECDSA(key))})
	require.NoError(t, err)
	assert.Equal(t, want, wallet.Address())

	_, err = LoadWallet(&config.WalletConfig{PrivateKey: "0x1234"})
	assert.Error(t, err)
}

func TestLoadWallet_Keystore(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	id, err := uuid.NewRandom()
	require.NoError(t, err)

	keyJSON, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}, "secret", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := t.TempDir() + "/key.json"
	require.NoError(t, os.WriteFile(path, keyJSON, 0o600))

	wallet, err := LoadWallet(&config.WalletConfig{Keystore: path, Passphrase: "secret"})
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), wallet.Address())

	_, err = LoadWallet(&config.WalletConfig{Keystore: path, Passphrase: "wrong"})
	assert.Error(t, err)
}

func TestActiveAccount_NoWallet(t *testing.T) {
	gw := NewEthereumGateway(&config.EthereumConfig{ChainID: 1}, nil, zap.NewNop())

	_, err := gw.ActiveAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoWallet)

	_, err = gw.SubmitWrite(context.Background(), &PreparedCall{})
	assert.ErrorIs(t, err, ErrNoWallet)
}
