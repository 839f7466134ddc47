package connector

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Method names used by the pipeline and the purchase flow.
const (
	MethodMint             = "mint"
	MethodMintedCount      = "mintedCount"
	MethodOwnerOf          = "ownerOf"
	MethodAcquireOwnership = "acquireOwnership"
	MethodApprove          = "approve"
	MethodBalanceOf        = "balanceOf"
	MethodPercentOwnership = "percentOwnership"
	MethodGetTransfers     = "getTransfers"
	MethodDepositToReserve = "depositToReserve"
	MethodSetTokenPrice    = "setTokenPrice"
	MethodTokenPrice       = "tokenPrice"
	MethodPurchaseReserve  = "purchaseFromReserve"
	EventTransfer          = "Transfer"
)

// CertificateNFTABI is the ERC-721 contract holding one token per certificate.
const CertificateNFTABI = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[]},
	{"type":"function","name":"mintedCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

// FractionTokenABI is the ERC-20 style token representing certificate fractions.
const FractionTokenABI = `[
	{"type":"function","name":"acquireOwnership","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"percentOwnership","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTransfers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"timestamp","type":"uint256"}]}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

// MarketplaceABI is the reserve pool selling fractions for native currency.
const MarketplaceABI = `[
	{"type":"function","name":"depositToReserve","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setTokenPrice","stateMutability":"nonpayable","inputs":[{"name":"price","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"tokenPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"purchaseFromReserve","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Contracts groups the three deployed contracts
type Contracts struct {
	Certificate ContractRef
	Token       ContractRef
	Marketplace ContractRef
}

// NewContracts parses the ABIs and binds them to the configured addresses
func NewContracts(certificate, token, marketplace string) (*Contracts, error) {
	certRef, err := newContractRef("certificate", certificate, CertificateNFTABI)
	if err != nil {
		return nil, err
	}

	tokenRef, err := newContractRef("token", token, FractionTokenABI)
	if err != nil {
		return nil, err
	}

	marketRef, err := newContractRef("marketplace", marketplace, MarketplaceABI)
	if err != nil {
		return nil, err
	}

	return &Contracts{
		Certificate: certRef,
		Token:       tokenRef,
		Marketplace: marketRef,
	}, nil
}

func newContractRef(name, address, definition string) (ContractRef, error) {
	if !common.IsHexAddress(address) {
		return ContractRef{}, fmt.Errorf("invalid %s contract address %q", name, address)
	}

	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return ContractRef{}, fmt.Errorf("failed to parse %s ABI: %w", name, err)
	}

	return ContractRef{
		Name:    name,
		Address: common.HexToAddress(address),
		ABI:     &parsed,
	}, nil
}

type transferTuple struct {
	From      common.Address
	To        common.Address
	Amount    *big.Int
	Timestamp *big.Int
}

// DecodeTransfers converts the decoded getTransfers output into transfer records
func DecodeTransfers(out interface{}) (records []model.TransferRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("%w: unexpected %s output %T", ErrRead, MethodGetTransfers, out)
		}
	}()

	tuples := *abi.ConvertType(out, new([]transferTuple)).(*[]transferTuple)

	records = make([]model.TransferRecord, 0, len(tuples))
	for _, t := range tuples {
		records = append(records, model.TransferRecord{
			From:      t.From.Hex(),
			To:        t.To.Hex(),
			Amount:    t.Amount,
			Timestamp: t.Timestamp.Uint64(),
		})
	}

	return records, nil
}
