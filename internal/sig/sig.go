// Package sig is the signature-verification primitive the ledger consumes.
//
// Keys are Ed25519. An account address is the last 20 bytes of the BLAKE3
// hash of the public key. Because Ed25519 signatures do not support key
// recovery, a proof carries the public key next to the signature:
//
//	proof = publicKey (32 bytes) || signature (64 bytes)
//
// Recover verifies the proof over a 32-byte digest and returns the address
// of the key that produced it, which gives callers the same contract as
// an ecrecover-style primitive.
package sig

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/roach88/flowguard/internal/types"
)

// ProofLength is the byte length of an encoded proof.
const ProofLength = ed25519.PublicKeySize + ed25519.SignatureSize

// messagePrefix is prepended to every digest before signing so a ledger
// signature can never be confused with a signature over raw data.
const messagePrefix = "\x19FlowGuard Signed Message:\n32"

// keyDerivationSalt fixes the HKDF salt for DeriveKey.
const keyDerivationSalt = "flowguard/keys/v1"

var (
	// ErrMalformedProof is returned when a proof has the wrong length.
	ErrMalformedProof = errors.New("sig: malformed proof")
	// ErrBadSignature is returned when a proof does not verify.
	ErrBadSignature = errors.New("sig: signature does not verify")
)

// Key is an Ed25519 signing key with its derived address.
type Key struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	address types.Address
}

// GenerateKey creates a key from the given randomness source.
func GenerateKey(rand io.Reader) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("sig: generate key: %w", err)
	}
	return &Key{private: priv, public: pub, address: AddressOf(pub)}, nil
}

// NewKeyFromSeed builds a key from a 32-byte Ed25519 seed.
func NewKeyFromSeed(seed []byte) (*Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("sig: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Key{private: priv, public: pub, address: AddressOf(pub)}, nil
}

// DeriveKey deterministically derives a key from a secret and a label
// using HKDF-SHA256. Distinct labels yield unrelated keys.
func DeriveKey(secret []byte, label string) (*Key, error) {
	if len(secret) == 0 {
		return nil, errors.New("sig: empty secret")
	}
	r := hkdf.New(sha256.New, secret, []byte(keyDerivationSalt), []byte(label))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("sig: derive key: %w", err)
	}
	return NewKeyFromSeed(seed)
}

// MustDeriveKey is like DeriveKey but panics on error. Tests use it.
func MustDeriveKey(secret []byte, label string) *Key {
	k, err := DeriveKey(secret, label)
	if err != nil {
		panic(err)
	}
	return k
}

// Address returns the account address of the key.
func (k *Key) Address() types.Address { return k.address }

// PublicKey returns the Ed25519 public key.
func (k *Key) PublicKey() ed25519.PublicKey { return k.public }

// Seed returns the 32-byte seed the key was built from.
func (k *Key) Seed() []byte { return k.private.Seed() }

// Sign produces a proof over digest.
func (k *Key) Sign(digest types.Hash) []byte {
	signature := ed25519.Sign(k.private, prefixed(digest))
	proof := make([]byte, 0, ProofLength)
	proof = append(proof, k.public...)
	return append(proof, signature...)
}

// AddressOf derives the account address of an Ed25519 public key.
func AddressOf(pub ed25519.PublicKey) types.Address {
	sum := blake3.Sum256(pub)
	return types.BytesToAddress(sum[:])
}

// Recover verifies proof over digest and returns the signer's address.
func Recover(digest types.Hash, proof []byte) (types.Address, error) {
	if len(proof) != ProofLength {
		return types.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedProof, ProofLength, len(proof))
	}
	pub := ed25519.PublicKey(proof[:ed25519.PublicKeySize])
	signature := proof[ed25519.PublicKeySize:]
	if !ed25519.Verify(pub, prefixed(digest), signature) {
		return types.Address{}, ErrBadSignature
	}
	return AddressOf(pub), nil
}

func prefixed(digest types.Hash) []byte {
	msg := make([]byte, 0, len(messagePrefix)+types.HashLength)
	msg = append(msg, messagePrefix...)
	return append(msg, digest[:]...)
}
