package core

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverEip712SignerRoundTrip(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want := ethcrypto.PubkeyToAddress(priv.PublicKey)

	var hash MessageHash
	copy(hash[:], []byte("0123456789012345678901"))
	domain := Eip712Domain{Name: "test-domain", Version: "1", ChainID: 1}

	digest := eip712Digest(domain, hash)
	sig, err := ethcrypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := RecoverEip712Signer(domain, hash, sig)
	if err != nil {
		t.Fatalf("RecoverEip712Signer: %v", err)
	}
	if got != want {
		t.Fatalf("recovered %x, want %x", got, want)
	}
}

func TestRecoverEip712SignerWrongDomainMismatches(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signerAddr := ethcrypto.PubkeyToAddress(priv.PublicKey)

	var hash MessageHash
	copy(hash[:], []byte("signed-under-domain-a!!"))
	digest := eip712Digest(Eip712Domain{Name: "a", Version: "1", ChainID: 1}, hash)
	sig, err := ethcrypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := RecoverEip712Signer(Eip712Domain{Name: "b", Version: "1", ChainID: 1}, hash, sig)
	if err != nil {
		t.Fatalf("RecoverEip712Signer: %v", err)
	}
	if got == signerAddr {
		t.Fatalf("recovered address should not match the real signer under a different domain")
	}
}
