// Package auth issues session tokens for wallet owners. A client asks for
// a challenge nonce, signs it with the wallet key, and trades the
// signature for a JWT carrying the normalized address.
package auth

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
)

// Service handles wallet challenge/response authentication.
type Service struct {
	secret []byte
	ttl    time.Duration

	mu     sync.Mutex
	nonces map[string]string // address -> outstanding challenge nonce
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		nonces: make(map[string]string),
	}
}

// LoginMessage is the human-readable text the wallet signs.
func LoginMessage(nonce string) string {
	return "Sign in to the marketplace\nnonce: " + nonce
}

// Challenge issues a single-use nonce for an address. A new challenge
// replaces any outstanding one.
func (s *Service) Challenge(address string) string {
	addr := models.NormalizeAddress(address)
	nonce := uuid.NewString()

	s.mu.Lock()
	s.nonces[addr] = nonce
	s.mu.Unlock()
	return nonce
}

// Login verifies a personal-sign signature over the outstanding challenge
// and returns a session JWT. The nonce is consumed whether or not the
// signature verifies.
func (s *Service) Login(address, signature string) (string, error) {
	addr := models.NormalizeAddress(address)

	s.mu.Lock()
	nonce, ok := s.nonces[addr]
	delete(s.nonces, addr)
	s.mu.Unlock()
	if !ok {
		return "", errs.New(errs.KindUnauthorized, "no active challenge for %s", addr)
	}

	if !verifyPersonalSig(addr, LoginMessage(nonce), signature) {
		return "", errs.New(errs.KindUnauthorized, "signature does not verify for %s", addr)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"address": addr,
		"exp":     time.Now().Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errs.Wrap(errs.KindExternalDependency, err, "failed to sign session token")
	}
	return signed, nil
}

// AddressFromToken validates a session JWT and extracts the wallet
// address.
func (s *Service) AddressFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errs.New(errs.KindUnauthorized, "invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errs.New(errs.KindUnauthorized, "invalid token claims")
	}
	addr, ok := claims["address"].(string)
	if !ok || addr == "" {
		return "", errs.New(errs.KindUnauthorized, "token has no address claim")
	}
	return addr, nil
}

// verifyPersonalSig recovers the signer of an EIP-191 personal message
// and compares it with the expected address.
func verifyPersonalSig(addr, message, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), norm)
	if err != nil {
		return false
	}
	return models.NormalizeAddress(crypto.PubkeyToAddress(*pub).Hex()) == addr
}
