package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hubnode/core"
	"hubnode/rpc"
)

func TestHandlersSubmitAndFetchCast(t *testing.T) {
	db := core.NewInMemoryKV()
	engine, err := core.NewEngine(db, core.EngineConfig{
		Network: "hub-test",
		Workers: 2,
		DefaultLimits: core.StoreLimits{
			Casts: 100, Reactions: 100, Links: 100, Verifications: 100, UserData: 100, UsernameProofs: 100,
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var key [32]byte
	copy(key[:], pub)
	signer := core.SignerFromEd25519(key)
	if err := engine.IngestOnChainEvent(core.OnChainEvent{
		Fid: 1, Type: core.SignerEvent, BlockNumber: 1,
		SignerBody: &core.SignerBody{Op: core.SignerOpAdd, Key: key},
	}); err != nil {
		t.Fatalf("activate signer: %v", err)
	}

	body := core.Body{Cast: &core.CastBody{Text: "via http"}}
	canonical := core.CanonicalizeBody(1, "hub-test", 1000, core.CastAdd, body)
	hash := core.ComputeMessageHash(canonical)
	sig := ed25519.Sign(priv, hash[:])
	msg := &core.Message{
		Fid: 1, Network: "hub-test", Timestamp: 1000, Type: core.CastAdd, Body: body,
		Hash: hash, HashScheme: core.HashSchemeBlake3, Signer: signer,
		Signature: sig, SignatureScheme: core.SignatureSchemeEd25519,
	}

	router := NewRouter(engine)

	submitReq := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(rpc.EncodeMessageFrame(msg)))
	submitRec := httptest.NewRecorder()
	router.ServeHTTP(submitRec, submitReq)
	if submitRec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", submitRec.Code, submitRec.Body.String())
	}
	var submitResp map[string]interface{}
	if err := json.Unmarshal(submitRec.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("unmarshal submit response: %v", err)
	}
	if applied, _ := submitResp["applied"].(bool); !applied {
		t.Fatalf("expected applied=true, got %v", submitResp)
	}

	hashHex := hex.EncodeToString(hash[:])
	getReq := httptest.NewRequest(http.MethodGet, "/v1/casts/"+hashHex+"?fid=1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
	var got core.Message
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal cast response: %v", err)
	}
	if got.Body.Cast == nil || got.Body.Cast.Text != "via http" {
		t.Fatalf("unexpected cast body: %+v", got.Body.Cast)
	}
}

func TestHandlersCastByIdNotFound(t *testing.T) {
	db := core.NewInMemoryKV()
	engine, err := core.NewEngine(db, core.EngineConfig{
		Network: "hub-test", Workers: 2,
		DefaultLimits: core.StoreLimits{Casts: 100},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	router := NewRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/v1/casts/"+hex.EncodeToString(make([]byte, 20))+"?fid=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlersSyncRootHashEmpty(t *testing.T) {
	db := core.NewInMemoryKV()
	engine, err := core.NewEngine(db, core.EngineConfig{Network: "hub-test", Workers: 2})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	router := NewRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/v1/sync/root-hash", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if exists, _ := resp["exists"].(bool); exists {
		t.Fatalf("expected no root hash for an empty trie")
	}
}
