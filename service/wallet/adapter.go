package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	solanago "github.com/gagliardetto/solana-go"
)

// ErrRejected is returned by an adapter that refuses to sign.
var ErrRejected = errors.New("signature request rejected")

// Adapter is a pluggable wallet provider. It owns a signing key and decides
// whether to sign what the session hands it.
type Adapter interface {
	// Name identifies the adapter in the wallet picker.
	Name() string

	// Ready reports whether a compatible wallet is present.
	Ready() bool

	// AutoConnectable reports whether the wallet was previously authorized and may
	// be connected at startup without a user action.
	AutoConnectable() bool

	Connect(ctx context.Context) (solanago.PublicKey, error)
	Disconnect(ctx context.Context) error

	// SignTransaction adds the wallet's signature to tx.
	SignTransaction(ctx context.Context, tx *solanago.Transaction) error
}

// keyAdapter is the shared implementation for adapters backed by a local private key.
type keyAdapter struct {
	mu   sync.Mutex
	name string
	load func() (solanago.PrivateKey, error)
	key  solanago.PrivateKey
}

func (a *keyAdapter) Name() string { return a.name }

func (a *keyAdapter) Connect(ctx context.Context) (solanago.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key, err := a.load()
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("%s: %w", a.name, err)
	}
	a.key = key
	return key.PublicKey(), nil
}

func (a *keyAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.key = nil
	return nil
}

func (a *keyAdapter) SignTransaction(ctx context.Context, tx *solanago.Transaction) error {
	a.mu.Lock()
	key := a.key
	a.mu.Unlock()

	if key == nil {
		return fmt.Errorf("%s: wallet is locked", a.name)
	}

	pub := key.PublicKey()
	signed := false
	_, err := tx.PartialSign(func(k solanago.PublicKey) *solanago.PrivateKey {
		if k.Equals(pub) {
			signed = true
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: sign transaction: %w", a.name, err)
	}
	if !signed {
		return fmt.Errorf("%s: %w: %s is not a signer", a.name, ErrRejected, pub)
	}
	return nil
}

// KeygenFileAdapter signs with a solana-keygen JSON keypair file.
// A keypair file that exists is treated as a previously authorized wallet.
type KeygenFileAdapter struct {
	keyAdapter
	path string
}

// NewKeygenFileAdapter creates an adapter for the keypair file at path.
func NewKeygenFileAdapter(path string) *KeygenFileAdapter {
	a := &KeygenFileAdapter{path: path}
	a.keyAdapter = keyAdapter{
		name: "keygen-file",
		load: func() (solanago.PrivateKey, error) {
			return solanago.PrivateKeyFromSolanaKeygenFile(a.path)
		},
	}
	return a
}

func (a *KeygenFileAdapter) Ready() bool {
	if a.path == "" {
		return false
	}
	info, err := os.Stat(a.path)
	return err == nil && !info.IsDir()
}

func (a *KeygenFileAdapter) AutoConnectable() bool { return true }

// MnemonicAdapter signs with a key derived from a BIP-39 mnemonic.
type MnemonicAdapter struct {
	keyAdapter
	mnemonic string
}

// NewMnemonicAdapter creates an adapter for mnemonic and optional passphrase.
func NewMnemonicAdapter(mnemonic, passphrase string) *MnemonicAdapter {
	a := &MnemonicAdapter{mnemonic: mnemonic}
	a.keyAdapter = keyAdapter{
		name: "mnemonic",
		load: func() (solanago.PrivateKey, error) {
			return KeyFromMnemonic(mnemonic, passphrase)
		},
	}
	return a
}

func (a *MnemonicAdapter) Ready() bool {
	return a.mnemonic != "" && ValidateMnemonic(a.mnemonic)
}

func (a *MnemonicAdapter) AutoConnectable() bool { return false }

// compile-time checks
var (
	_ Adapter = (*KeygenFileAdapter)(nil)
	_ Adapter = (*MnemonicAdapter)(nil)
)
