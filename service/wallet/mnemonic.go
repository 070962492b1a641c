package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid per BIP-39
// (correct word count, valid words, valid checksum).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// KeyFromMnemonic derives the signing key the way `solana-keygen recover` does
// without a derivation path: the first 32 bytes of the BIP-39 seed are the ed25519 seed.
func KeyFromMnemonic(mnemonic, passphrase string) (solanago.PrivateKey, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return solanago.PrivateKey(ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])), nil
}

// WriteKeygenFile stores key in the solana-keygen JSON format (a 64 element byte array).
func WriteKeygenFile(path string, key solanago.PrivateKey) error {
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair file: %w", err)
	}
	return nil
}
