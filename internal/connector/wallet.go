package connector

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the key used to sign writes
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWallet wraps an already loaded private key
func NewWallet(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// LoadWallet loads the signing key from a hex private key or an encrypted keystore file.
// It returns ErrNoWallet when neither is configured.
func LoadWallet(cfg *config.WalletConfig) (*Wallet, error) {
	switch {
	case cfg.PrivateKey != "":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return NewWallet(key), nil

	case cfg.Keystore != "":
		keyJSON, err := os.ReadFile(cfg.Keystore)
		if err != nil {
			return nil, fmt.Errorf("failed to read keystore %s: %w", cfg.Keystore, err)
		}

		key, err := keystore.DecryptKey(keyJSON, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt keystore %s: %w", cfg.Keystore, err)
		}
		return NewWallet(key.PrivateKey), nil
	}

	return nil, ErrNoWallet
}

func (w *Wallet) Address() common.Address {
	return w.address
}
