package entropy

import (
	"context"
	"fmt"
	"os"
	"strings"

	bip39 "github.com/tyler-smith/go-bip39"
)

// LocalSource reads a BIP-39 mnemonic from a file and derives the master seed
// from it. The mnemonic file plays the role of the installation's secret
// recovery phrase: as long as the same file is present, every account can be
// re-derived from its name alone.
type LocalSource struct {
	path string
}

// NewLocalSource creates a LocalSource for the given mnemonic file.
func NewLocalSource(path string) *LocalSource {
	return &LocalSource{path: path}
}

// GenerateMnemonicFile writes a fresh 24-word mnemonic to path unless the file
// already exists. Returns true if a new mnemonic was generated.
func GenerateMnemonicFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	ent, err := bip39.NewEntropy(256)
	if err != nil {
		return false, fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(ent)
	if err != nil {
		return false, fmt.Errorf("generate mnemonic: %w", err)
	}
	if err := os.WriteFile(path, []byte(mnemonic+"\n"), 0600); err != nil {
		return false, fmt.Errorf("write mnemonic file: %w", err)
	}
	return true, nil
}

// Seed returns the 64-byte BIP-39 seed for the stored mnemonic.
func (s *LocalSource) Seed(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read mnemonic file %s: %v", ErrUnavailable, s.path, err)
	}
	mnemonic := strings.TrimSpace(string(data))
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: mnemonic file %s does not contain a valid mnemonic", ErrUnavailable, s.path)
	}
	return bip39.NewSeed(mnemonic, ""), nil
}
