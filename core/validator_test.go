package core

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestValidatorAcceptsEip712SignedMessage(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := ethcrypto.PubkeyToAddress(priv.PublicKey)
	var addr20 [20]byte
	copy(addr20[:], addr[:])

	body := Body{UserData: &UserDataBody{Type: UserDataTypeBio, Value: "hi"}}
	canonical := CanonicalizeBody(1, "hub-test", 1000, UserDataAdd, body)
	hash := ComputeMessageHash(canonical)
	digest := eip712Digest(messageEip712Domain, hash)
	sig, err := ethcrypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	msg := &Message{
		Fid: 1, Network: "hub-test", Timestamp: 1000, Type: UserDataAdd, Body: body,
		Hash: hash, HashScheme: HashSchemeBlake3,
		Signer:          SignerFromAddress(addr20),
		Signature:       sig,
		SignatureScheme: SignatureSchemeEip712,
	}

	v := NewValidator("hub-test", fakeSignerLookup{}, 1, nil)
	if err := v.validate(msg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidatorRejectsEip712MismatchedSigner(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	body := Body{UserData: &UserDataBody{Type: UserDataTypeBio, Value: "hi"}}
	canonical := CanonicalizeBody(1, "hub-test", 1000, UserDataAdd, body)
	hash := ComputeMessageHash(canonical)
	digest := eip712Digest(messageEip712Domain, hash)
	sig, err := ethcrypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	msg := &Message{
		Fid: 1, Network: "hub-test", Timestamp: 1000, Type: UserDataAdd, Body: body,
		Hash: hash, HashScheme: HashSchemeBlake3,
		Signer:          SignerFromAddress([20]byte{0xAA, 0xBB}),
		Signature:       sig,
		SignatureScheme: SignatureSchemeEip712,
	}

	v := NewValidator("hub-test", fakeSignerLookup{}, 1, nil)
	if err := v.validate(msg); err == nil {
		t.Fatal("expected validation to fail for a signer that doesn't match the recovered address")
	}
}
