package httpapi

import (
	"github.com/gorilla/mux"

	"hubnode/core"
)

// NewRouter builds the v1 JSON API router, mirroring the teacher's
// walletserver routes.go registration style: one mux.Router, one Logger
// middleware, one HandleFunc per resource.
func NewRouter(engine *core.Engine) *mux.Router {
	h := NewHandlers(engine)
	r := mux.NewRouter()
	r.Use(Logger)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/messages", h.SubmitMessage).Methods("POST")

	v1.HandleFunc("/casts/{hash}", h.CastById).Methods("GET")
	v1.HandleFunc("/casts", h.CastsByFid).Methods("GET")
	v1.HandleFunc("/reactions", h.ReactionsByFid).Methods("GET")
	v1.HandleFunc("/links", h.LinksByFid).Methods("GET")
	v1.HandleFunc("/userdata", h.UserDataByFid).Methods("GET")
	v1.HandleFunc("/verifications", h.VerificationsByFid).Methods("GET")
	v1.HandleFunc("/username-proofs", h.UsernameProofByName).Methods("GET")

	v1.HandleFunc("/onchain-events", h.OnChainEventsByFid).Methods("GET")
	v1.HandleFunc("/events", h.Events).Methods("GET")

	v1.HandleFunc("/sync/root-hash", h.SyncRootHash).Methods("GET")
	v1.HandleFunc("/sync/metadata", h.SyncMetadataByPrefix).Methods("GET")
	v1.HandleFunc("/sync/ids", h.AllSyncIdsByPrefix).Methods("GET")
	v1.HandleFunc("/sync/messages", h.AllMessagesBySyncIds).Methods("POST")

	return r
}
