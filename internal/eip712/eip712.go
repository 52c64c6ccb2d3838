// Package eip712 verifies typed-data order signatures. The signed message
// is domain-separated by {name, version, chainId}; every field, amounts
// included, is carried as a string so no precision is lost between the
// wallet and the verifier.
package eip712

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/gamefrax/marketplace/internal/models"
)

const (
	domainType = "EIP712Domain(string name,string version,uint256 chainId)"
	orderType  = "Order(string orderId,string side,string poolId,string ftAddress," +
		"string amount,string pricePerToken,string userAddress,string nonce,string expiresAt)"
)

// Domain separates signatures between deployments and chains.
type Domain struct {
	Name    string
	Version string
	ChainID int64
}

// Verifier checks order signatures against a fixed domain.
type Verifier struct {
	domain Domain
}

func NewVerifier(d Domain) *Verifier {
	return &Verifier{domain: d}
}

func keccak(chunks ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum(nil)
}

func hashString(s string) []byte {
	return keccak([]byte(s))
}

func uint256Bytes(v int64) []byte {
	out := make([]byte, 32)
	out[24] = byte(v >> 56)
	out[25] = byte(v >> 48)
	out[26] = byte(v >> 40)
	out[27] = byte(v >> 32)
	out[28] = byte(v >> 24)
	out[29] = byte(v >> 16)
	out[30] = byte(v >> 8)
	out[31] = byte(v)
	return out
}

// sideAlias is the wire spelling used inside signed orders.
func sideAlias(s models.Side) string {
	if s == models.SideBuy {
		return "BID"
	}
	return "ASK"
}

func (v *Verifier) domainSeparator() []byte {
	return keccak(
		hashString(domainType),
		hashString(v.domain.Name),
		hashString(v.domain.Version),
		uint256Bytes(v.domain.ChainID),
	)
}

func (v *Verifier) structHash(o *models.Order) []byte {
	return keccak(
		hashString(orderType),
		hashString(o.OrderID),
		hashString(sideAlias(o.Side)),
		hashString(o.PoolID),
		hashString(o.FTAddress),
		hashString(o.Amount.String()),
		hashString(o.PricePerToken.String()),
		hashString(models.NormalizeAddress(o.UserAddress)),
		hashString(strconv.FormatInt(o.Nonce, 10)),
		hashString(strconv.FormatInt(o.ExpiresAt.Unix(), 10)),
	)
}

// Hash is the digest a wallet signs for this order: the EIP-712 envelope
// over the domain separator and the order struct hash.
func (v *Verifier) Hash(o *models.Order) []byte {
	return keccak([]byte{0x19, 0x01}, v.domainSeparator(), v.structHash(o))
}

// Verify recovers the signer of the order digest and compares it with the
// order's userAddress. Any malformed or mismatching signature yields
// false; verification failures are terminal, never retried.
func (v *Verifier) Verify(o *models.Order, signature string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false, nil
	}

	// Wallets emit V as 27/28, crypto.SigToPub expects 0/1.
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}

	pub, err := crypto.SigToPub(v.Hash(o), norm)
	if err != nil {
		return false, nil
	}
	recovered := crypto.PubkeyToAddress(*pub)
	return models.NormalizeAddress(recovered.Hex()) == models.NormalizeAddress(o.UserAddress), nil
}
