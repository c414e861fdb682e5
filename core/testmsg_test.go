package core

import (
	"crypto/ed25519"
	"crypto/rand"
)

// testSigner is a throwaway ed25519 keypair used to build well-formed
// signed messages in tests without exercising the Ethereum/EIP-712 path.
type testSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestSigner() testSigner {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return testSigner{pub: pub, priv: priv}
}

func (s testSigner) signer() Signer {
	var k [32]byte
	copy(k[:], s.pub)
	return SignerFromEd25519(k)
}

// newTestMessage builds a fully hashed and signed Message for fid under the
// given network, type, body, and timestamp.
func newTestMessage(fid Fid, network string, ts uint32, mt MessageType, body Body, s testSigner) *Message {
	canonical := CanonicalizeBody(fid, network, ts, mt, body)
	hash := ComputeMessageHash(canonical)
	sig := ed25519.Sign(s.priv, hash[:])
	return &Message{
		Fid:             fid,
		Network:         network,
		Timestamp:       ts,
		Type:            mt,
		Body:            body,
		Hash:            hash,
		HashScheme:      HashSchemeBlake3,
		Signer:          s.signer(),
		Signature:       sig,
		SignatureScheme: SignatureSchemeEd25519,
	}
}

func testCastAdd(fid Fid, ts uint32, text string, s testSigner) *Message {
	return newTestMessage(fid, "hub-test", ts, CastAdd, Body{Cast: &CastBody{Text: text}}, s)
}

func testCastRemove(fid Fid, ts uint32, target MessageHash, s testSigner) *Message {
	return newTestMessage(fid, "hub-test", ts, CastRemove, Body{Cast: &CastBody{TargetHash: target}}, s)
}

// fakeSignerLookup treats every signer as active for every fid, for tests
// that don't exercise signer authorization.
type fakeSignerLookup struct{}

func (fakeSignerLookup) IsActiveSigner(fid Fid, signer Signer) bool { return true }
func (fakeSignerLookup) CustodyAddress(fid Fid) ([20]byte, bool)    { return [20]byte{}, false }
