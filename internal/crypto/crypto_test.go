package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := SealKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := OpenKey(sealed, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got != testKeyHex {
		t.Fatalf("key = %s", got)
	}
	if _, err := OpenKey(sealed, "wrong"); err == nil {
		t.Fatal("wrong password must fail")
	}
}

func TestLoadKey(t *testing.T) {
	sealed, err := SealKey(testKeyHex, "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatal(err)
	}

	fromFile, err := LoadKey(KeySource{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := LoadKey(KeySource{RawPrivateKey: testKeyHex})
	if err != nil {
		t.Fatal(err)
	}
	if ethcrypto.PubkeyToAddress(fromFile.PublicKey) != ethcrypto.PubkeyToAddress(raw.PublicKey) {
		t.Fatal("file and raw key differ")
	}
	if _, err := LoadKey(KeySource{}); err == nil {
		t.Fatal("empty source must fail")
	}
	if _, err := LoadKey(KeySource{RawPrivateKey: "abcd"}); err == nil {
		t.Fatal("short key must fail")
	}
}

func TestSignOrderRecoversSigner(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	exchange := common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	s := NewSigner(key, 137, exchange)

	order := OrderPayload{
		Salt:        "12345",
		Maker:       s.Address().Hex(),
		Signer:      s.Address().Hex(),
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "4000000",
		TakerAmount: "10000000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        SideBuy,
	}
	sigHex, err := s.SignOrder(exchange, order)
	if err != nil {
		t.Fatal(err)
	}

	sig := common.FromHex(sigHex)
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("signature = %s", sigHex)
	}
	sig[64] -= 27

	structHash, err := orderStructHash(order)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := ethcrypto.SigToPub(typedDataHash(s.exchangeDomain(exchange), structHash), sig)
	if err != nil {
		t.Fatal(err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != s.Address() {
		t.Fatal("recovered address does not match signer")
	}

	order.Salt = "not-a-number"
	if _, err := s.SignOrder(exchange, order); err == nil || !strings.Contains(err.Error(), "salt") {
		t.Fatalf("err = %v", err)
	}
}

func TestSignAuthDeterministic(t *testing.T) {
	key, _ := ethcrypto.HexToECDSA(testKeyHex)
	s := NewSigner(key, 137)
	a, err := s.SignAuth(1700000000, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.SignAuth(1700000000, 0)
	c, _ := s.SignAuth(1700000001, 0)
	if a != b || a == c {
		t.Fatal("auth signature must be deterministic per timestamp")
	}
}

func TestL2HeadersAt(t *testing.T) {
	creds := APICreds{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"}
	h1 := creds.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)
	h2 := creds.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)
	h3 := creds.L2HeadersAt("0xabc", "POST", "/order", `{"a":2}`, 1700000000)

	if h1["POLY_SIGNATURE"] != h2["POLY_SIGNATURE"] || h1["POLY_SIGNATURE"] == h3["POLY_SIGNATURE"] {
		t.Fatal("signature must depend only on inputs")
	}
	if h1["POLY_TIMESTAMP"] != "1700000000" || h1["POLY_API_KEY"] != "k" {
		t.Fatalf("headers = %v", h1)
	}
	if strings.Contains(creds.String(), "c2VjcmV0") {
		t.Fatal("secret leaked into String()")
	}
}
