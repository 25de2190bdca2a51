package exchange

import (
	"crypto/ed25519"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Signer holds the ed25519 keypair used to sign every outgoing order
// action. It replaces the teacher's ECDSA/EIP-712 Auth (secp256k1 key,
// HMAC-SHA256 request signing, L1/L2 header generation) with a single
// ed25519 signature over the canonical action bytes, matching this
// exchange's base58-seed key format instead of Ethereum's hex keys.
//
// go-ethereum's address/hex helpers are kept narrowly for formatting a
// stable hex identifier for logging and display, even though they play no
// role in the signature itself.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner parses a base58-encoded private key. A 32-byte decoded value is
// treated as an ed25519 seed; a 64-byte value is treated as a full
// private key, of which only the first 32 bytes (the seed) are used — this
// mirrors the reference client's documented "either form accepted" key
// convention.
func NewSigner(base58Key string) (*Signer, error) {
	raw, err := base58.Decode(base58Key)
	if err != nil {
		return nil, fmt.Errorf("exchange: decode base58 private key: %w", err)
	}

	var seed []byte
	switch len(raw) {
	case ed25519.SeedSize:
		seed = raw
	case ed25519.PrivateKeySize:
		seed = raw[:ed25519.SeedSize]
	default:
		return nil, fmt.Errorf("exchange: private key decodes to %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign produces an ed25519 signature over the given message bytes, the
// canonical serialization of one order action.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// PublicKeyBase58 returns the base58-encoded public key, sent alongside
// every signed action so the exchange can verify it.
func (s *Signer) PublicKeyBase58() string {
	return base58.Encode(s.pub)
}

// AddressHex returns a stable 0x-prefixed hex identifier derived from the
// public key, used only for logging and the monitor TUI's account display.
func (s *Signer) AddressHex() string {
	return "0x" + common.Bytes2Hex(s.pub)
}
