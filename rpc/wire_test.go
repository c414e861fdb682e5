package rpc

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"hubnode/core"
)

func buildSignedMessage(t *testing.T, mt core.MessageType, body core.Body) *core.Message {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var key [32]byte
	copy(key[:], pub)
	signer := core.SignerFromEd25519(key)

	canonical := core.CanonicalizeBody(99, "hub-test", 1234, mt, body)
	hash := core.ComputeMessageHash(canonical)
	sig := ed25519.Sign(priv, hash[:])

	return &core.Message{
		Fid:             99,
		Network:         "hub-test",
		Timestamp:       1234,
		Type:            mt,
		Body:            body,
		Hash:            hash,
		HashScheme:      core.HashSchemeBlake3,
		Signer:          signer,
		Signature:       sig,
		SignatureScheme: core.SignatureSchemeEd25519,
	}
}

func TestEncodeDecodeMessageFrameCastAdd(t *testing.T) {
	m := buildSignedMessage(t, core.CastAdd, core.Body{Cast: &core.CastBody{Text: "hello wire"}})

	raw := EncodeMessageFrame(m)
	got, err := DecodeMessageFrame(raw)
	if err != nil {
		t.Fatalf("DecodeMessageFrame: %v", err)
	}

	if got.Fid != m.Fid || got.Network != m.Network || got.Timestamp != m.Timestamp || got.Type != m.Type {
		t.Fatalf("envelope mismatch: got %+v want %+v", got, m)
	}
	if got.Hash != m.Hash || got.Signer != m.Signer || got.HashScheme != m.HashScheme || got.SignatureScheme != m.SignatureScheme {
		t.Fatalf("crypto fields mismatch")
	}
	if got.Body.Cast == nil || got.Body.Cast.Text != "hello wire" {
		t.Fatalf("unexpected body: %+v", got.Body.Cast)
	}
}

func TestEncodeDecodeMessageFrameReactionRemove(t *testing.T) {
	var target core.MessageHash
	target[3] = 0x42
	body := core.Body{Reaction: &core.ReactionBody{Type: core.ReactionTypeRecast, TargetCastHash: target, TargetFid: 7}}
	m := buildSignedMessage(t, core.ReactionRemove, body)

	got, err := DecodeMessageFrame(EncodeMessageFrame(m))
	if err != nil {
		t.Fatalf("DecodeMessageFrame: %v", err)
	}
	if got.Body.Reaction == nil || got.Body.Reaction.Type != core.ReactionTypeRecast || got.Body.Reaction.TargetCastHash != target {
		t.Fatalf("unexpected reaction body: %+v", got.Body.Reaction)
	}
}

func TestEncodeDecodeMessageFrameLinkAdd(t *testing.T) {
	body := core.Body{Link: &core.LinkBody{Type: "follow", TargetFid: 55}}
	m := buildSignedMessage(t, core.LinkAdd, body)

	got, err := DecodeMessageFrame(EncodeMessageFrame(m))
	if err != nil {
		t.Fatalf("DecodeMessageFrame: %v", err)
	}
	if got.Body.Link == nil || got.Body.Link.Type != "follow" || got.Body.Link.TargetFid != 55 {
		t.Fatalf("unexpected link body: %+v", got.Body.Link)
	}
}

func TestEncodeDecodeMessageFrameUserDataAdd(t *testing.T) {
	body := core.Body{UserData: &core.UserDataBody{Type: core.UserDataTypeDisplay, Value: "Alice"}}
	m := buildSignedMessage(t, core.UserDataAdd, body)

	got, err := DecodeMessageFrame(EncodeMessageFrame(m))
	if err != nil {
		t.Fatalf("DecodeMessageFrame: %v", err)
	}
	if got.Body.UserData == nil || got.Body.UserData.Value != "Alice" || got.Body.UserData.Type != core.UserDataTypeDisplay {
		t.Fatalf("unexpected userdata body: %+v", got.Body.UserData)
	}
}

func TestDecodeMessageFrameRejectsMalformedTag(t *testing.T) {
	if _, err := DecodeMessageFrame([]byte{0xFF}); err == nil {
		t.Fatalf("expected a parse error for a malformed tag byte")
	}
}
