package core

import (
	"encoding/binary"
	"encoding/json"
	"sync"
)

// HubEventType discriminates the kind of state change a HubEvent records.
type HubEventType string

const (
	HubEventMergeMessage       HubEventType = "merge_message"
	HubEventMergeUsernameProof HubEventType = "merge_username_proof"
	HubEventPruneMessage       HubEventType = "prune_message"
	HubEventRevokeMessage      HubEventType = "revoke_message"
	HubEventMergeOnChain       HubEventType = "merge_onchain_event"
)

// HubEvent is a single row of the append-only event log (§4 component 4).
type HubEvent struct {
	ID   uint64       `json:"id"`
	Type HubEventType `json:"type"`
	Fid  Fid          `json:"fid"`
	Body json.RawMessage `json:"body"`
}

// EventHandler persists the append-only HubEvent log and fans new events out
// to live subscribers, generalizing the teacher's EventManager (single
// global singleton, Emit/List/Get) into an Engine-owned instance with
// channel-based fan-out instead of a single reader.
type EventHandler struct {
	db KVStore

	mu          sync.Mutex
	nextID      uint64
	subscribers map[int]chan HubEvent
	nextSubID   int
}

// NewEventHandler loads the next monotonic event ID from the log's tail.
func NewEventHandler(db KVStore) (*EventHandler, error) {
	h := &EventHandler{db: db, subscribers: make(map[int]chan HubEvent)}
	err := db.View(func(txn Txn) error {
		return txn.Iterate([]byte{byte(PrefixHubEvent)}, true, func(key, value []byte) bool {
			h.nextID = binary.BigEndian.Uint64(key[1:9]) + 1
			return false
		})
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Append writes ev under the next monotonic ID inside txn and returns it.
// It does not notify subscribers; a caller that wants them notified passes
// the returned event to Publish after its transaction commits.
func (h *EventHandler) Append(txn Txn, typ HubEventType, fid Fid, body interface{}) (HubEvent, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return HubEvent{}, NewError(ErrUnknown, err, "encode event body")
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.mu.Unlock()

	ev := HubEvent{ID: id, Type: typ, Fid: fid, Body: raw}
	blob, err := json.Marshal(ev)
	if err != nil {
		return HubEvent{}, NewError(ErrUnknown, err, "encode hub event")
	}
	if err := txn.Set(HubEventKey(id), blob); err != nil {
		return HubEvent{}, err
	}
	return ev, nil
}

// Publish fans ev out to current subscribers, dropping it for any whose
// channel is full rather than blocking the caller (events are a best-effort
// notification surface, not a durable delivery guarantee; the log itself is
// durable).
func (h *EventHandler) Publish(ev HubEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new channel that receives every event passed to
// Publish until the returned cancel func is called. Only MessageStore.Merge
// publishes, and only its merge event: prune, revoke and on-chain events
// are written to the log (see List) but are not delivered to subscribers.
func (h *EventHandler) Subscribe(buffer int) (<-chan HubEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan HubEvent, buffer)
	h.subscribers[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, id)
		close(ch)
	}
}

// List returns up to limit events at or after sinceID in commit order; pass
// limit<=0 for no limit.
func (h *EventHandler) List(sinceID uint64, limit int) ([]HubEvent, error) {
	var out []HubEvent
	err := h.db.View(func(txn Txn) error {
		return txn.Iterate([]byte{byte(PrefixHubEvent)}, false, func(key, value []byte) bool {
			id := binary.BigEndian.Uint64(key[1:9])
			if id < sinceID {
				return true
			}
			var ev HubEvent
			if err := json.Unmarshal(value, &ev); err == nil {
				out = append(out, ev)
			}
			return limit <= 0 || len(out) < limit
		})
	})
	return out, err
}
