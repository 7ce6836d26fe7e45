package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ClobAuthMessage is the fixed attestation signed to derive API creds.
const ClobAuthMessage = "This message attests that I control the given wallet"

var (
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	domainWithContractTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// Order sides and signature types as encoded in the signed struct.
const (
	SideBuy  = 0
	SideSell = 1

	SignatureTypeEOA = 0
)

// OrderPayload is the signed portion of a CLOB order. Integers are decimal
// strings so they survive JSON unchanged.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer produces EIP-712 signatures for the ClobAuth and CTF Exchange
// domains.
type Signer struct {
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      int64
	authDomain   []byte
	orderDomains map[common.Address][]byte
}

// NewSigner creates a Signer for chainID (137 on Polygon mainnet). Each
// exchange contract orders may be signed against gets its own domain.
func NewSigner(key *ecdsa.PrivateKey, chainID int64, exchanges ...common.Address) *Signer {
	s := &Signer{
		key:          key,
		address:      ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		orderDomains: make(map[common.Address][]byte, len(exchanges)),
	}
	s.authDomain = ethcrypto.Keccak256(concatBytes(
		domainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		uint256(big.NewInt(chainID)),
	))
	for _, ex := range exchanges {
		s.orderDomains[ex] = s.exchangeDomain(ex)
	}
	return s
}

// Address is the wallet address.
func (s *Signer) Address() common.Address { return s.address }

// ChainID is the chain the signer targets.
func (s *Signer) ChainID() int64 { return s.chainID }

// PrivateKey exposes the wallet key for on-chain transactions.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.key }

// SignAuth signs the ClobAuth attestation for timestamp and nonce.
func (s *Signer) SignAuth(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(strconv.FormatInt(timestamp, 10))),
		uint256(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(ClobAuthMessage)),
	))
	return s.signDigest(typedDataHash(s.authDomain, structHash))
}

// SignOrder signs order against the exchange contract's domain.
func (s *Signer) SignOrder(exchange common.Address, order OrderPayload) (string, error) {
	domainSep, ok := s.orderDomains[exchange]
	if !ok {
		domainSep = s.exchangeDomain(exchange)
	}
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(typedDataHash(domainSep, structHash))
}

func (s *Signer) exchangeDomain(exchange common.Address) []byte {
	return ethcrypto.Keccak256(concatBytes(
		domainWithContractTypeHash,
		ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		uint256(big.NewInt(s.chainID)),
		common.LeftPadBytes(exchange.Bytes(), 32),
	))
}

// typedDataHash is keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataHash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

// signDigest returns the 65-byte r||s||v signature as 0x hex with v in
// {27,28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name, val string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	ints := make(map[string]*big.Int, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.val, 10)
		if !ok {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.val)
		}
		ints[f.name] = n
	}

	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		uint256(ints["salt"]),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		uint256(ints["tokenId"]),
		uint256(ints["makerAmount"]),
		uint256(ints["takerAmount"]),
		uint256(ints["expiration"]),
		uint256(ints["nonce"]),
		uint256(ints["feeRateBps"]),
		uint256(big.NewInt(int64(o.Side))),
		uint256(big.NewInt(int64(o.SignatureType))),
	)), nil
}

// uint256 left-pads n to a 32-byte big-endian word.
func uint256(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
