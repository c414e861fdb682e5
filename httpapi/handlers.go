package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"hubnode/core"
	"hubnode/rpc"
)

// Handlers implements the JSON HTTP surface of §6 as a thin adapter over
// the Engine facade; it carries no state-engine semantics of its own,
// matching the walletserver controller-wraps-a-service idiom.
type Handlers struct {
	engine *core.Engine
}

func NewHandlers(engine *core.Engine) *Handlers {
	return &Handlers{engine: engine}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.ErrValidationFailure, core.ErrInvalidParam, core.ErrParseFailure, core.ErrDuplicate, core.ErrConflict, core.ErrPrunable:
		status = http.StatusBadRequest
	case core.ErrUnauthenticated:
		status = http.StatusUnauthorized
	case core.ErrUnauthorized:
		status = http.StatusForbidden
	case core.ErrNotFound:
		status = http.StatusNotFound
	case core.ErrUnavailableStorage, core.ErrUnavailableNetwork:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func parseFid(r *http.Request, key string) (core.Fid, error) {
	v := r.URL.Query().Get(key)
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, core.NewError(core.ErrInvalidParam, err, "invalid %s", key)
	}
	return core.Fid(n), nil
}

func pageOptionsFromRequest(r *http.Request) core.PageOptions {
	opts := core.PageOptions{}
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if n, err := strconv.Atoi(ps); err == nil {
			opts.PageSize = n
		}
	}
	if pt := r.URL.Query().Get("pageToken"); pt != "" {
		if b, err := base64.URLEncoding.DecodeString(pt); err == nil {
			opts.PageToken = b
		}
	}
	if r.URL.Query().Get("reverse") == "true" {
		opts.Reverse = true
	}
	return opts
}

type pageResponse struct {
	Messages      []*core.Message `json:"messages"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

func newPageResponse(p *core.Page) pageResponse {
	resp := pageResponse{Messages: p.Messages}
	if len(p.NextPageToken) > 0 {
		resp.NextPageToken = base64.URLEncoding.EncodeToString(p.NextPageToken)
	}
	return resp
}

// SubmitMessage decodes a length-delimited protobuf-wire-framed message
// from the raw request body and merges it through the Engine (§6, §4.4).
func (h *Handlers) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, core.NewError(core.ErrParseFailure, err, "read request body"))
		return
	}
	msg, err := rpc.DecodeMessageFrame(body)
	if err != nil {
		writeError(w, err)
		return
	}
	applied, err := h.engine.SubmitMessage(r.Context(), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"applied": applied, "hash": hex.EncodeToString(msg.Hash[:])})
}

func (h *Handlers) CastById(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	hashHex := mux.Vars(r)["hash"]
	raw, err := hex.DecodeString(hashHex)
	if err != nil || len(raw) != 20 {
		writeError(w, core.NewError(core.ErrInvalidParam, err, "invalid hash"))
		return
	}
	var hash core.MessageHash
	copy(hash[:], raw)
	casts, _, _, _, _, _ := h.engine.Stores()
	m, found, err := casts.GetCastAdd(fid, hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, core.NewError(core.ErrNotFound, nil, "cast not found"))
		return
	}
	writeJSON(w, m)
}

func (h *Handlers) CastsByFid(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	casts, _, _, _, _, _ := h.engine.Stores()
	page, err := casts.GetAllMessagesByFid(fid, pageOptionsFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, newPageResponse(page))
}

func (h *Handlers) ReactionsByFid(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	_, reactions, _, _, _, _ := h.engine.Stores()
	page, err := reactions.GetAllMessagesByFid(fid, pageOptionsFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, newPageResponse(page))
}

func (h *Handlers) LinksByFid(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	_, _, links, _, _, _ := h.engine.Stores()
	page, err := links.GetAllMessagesByFid(fid, pageOptionsFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, newPageResponse(page))
}

func (h *Handlers) UserDataByFid(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	_, _, _, _, userData, _ := h.engine.Stores()
	page, err := userData.GetAllMessagesByFid(fid, pageOptionsFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, newPageResponse(page))
}

func (h *Handlers) VerificationsByFid(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	_, _, _, verifications, _, _ := h.engine.Stores()
	page, err := verifications.GetAllMessagesByFid(fid, pageOptionsFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, newPageResponse(page))
}

func (h *Handlers) UsernameProofByName(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	name := r.URL.Query().Get("name")
	_, _, _, _, _, proofs := h.engine.Stores()
	m, found, err := proofs.GetUsernameProof(fid, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, core.NewError(core.ErrNotFound, nil, "username proof not found"))
		return
	}
	writeJSON(w, m)
}

type onChainEventPageResponse struct {
	Events        []*core.OnChainEvent `json:"events"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

func (h *Handlers) OnChainEventsByFid(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFid(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.engine.OnChainEvents().GetEventsByFid(fid, pageOptionsFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := onChainEventPageResponse{Events: page.Events}
	if len(page.NextPageToken) > 0 {
		resp.NextPageToken = base64.URLEncoding.EncodeToString(page.NextPageToken)
	}
	writeJSON(w, resp)
}

func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	since := uint64(0)
	if s := r.URL.Query().Get("since"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			since = n
		}
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	events, err := h.engine.Events().List(since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, events)
}

func (h *Handlers) SyncRootHash(w http.ResponseWriter, r *http.Request) {
	hash, ok, err := h.engine.SyncTrie().RootHash()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"rootHash": hex.EncodeToString(hash[:]), "exists": ok})
}

func (h *Handlers) SyncMetadataByPrefix(w http.ResponseWriter, r *http.Request) {
	prefix, err := hexNibblePrefix(r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	md, found, err := h.engine.SyncTrie().NodeMetadataAt(prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, core.NewError(core.ErrNotFound, nil, "no node at prefix"))
		return
	}
	writeJSON(w, md)
}

func (h *Handlers) AllSyncIdsByPrefix(w http.ResponseWriter, r *http.Request) {
	prefix, err := hexNibblePrefix(r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := h.engine.SyncTrie().AllSyncIdsByPrefix(prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = hex.EncodeToString(id[:])
	}
	writeJSON(w, out)
}

// AllMessagesBySyncIds resolves a batch of hex-encoded SyncIds (posted as a
// JSON array) back into their full messages (§6 getAllMessagesBySyncIds).
func (h *Handlers) AllMessagesBySyncIds(w http.ResponseWriter, r *http.Request) {
	var req []string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewError(core.ErrParseFailure, err, "decode request body"))
		return
	}
	ids := make([]core.SyncId, 0, len(req))
	for _, s := range req {
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != 35 {
			writeError(w, core.NewError(core.ErrInvalidParam, err, "invalid sync id %q", s))
			return
		}
		var id core.SyncId
		copy(id[:], raw)
		ids = append(ids, id)
	}
	msgs, err := h.engine.GetAllMessagesBySyncIds(ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, msgs)
}

// hexNibblePrefix decodes a hex-encoded prefix string into the one-nibble-
// per-byte format SyncTrie addresses nodes by.
func hexNibblePrefix(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	out := make([]byte, 0, len(s))
	for _, c := range s {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = byte(c - '0')
		case c >= 'a' && c <= 'f':
			v = byte(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = byte(c-'A') + 10
		default:
			return nil, core.NewError(core.ErrInvalidParam, nil, "invalid hex nibble %q", c)
		}
		out = append(out, v)
	}
	return out, nil
}
