package core

import (
	"context"
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"
)

// RevokeJob asks every typed store to drop messages signed by Signer for
// Fid (§4.8, §8 cascading revocation).
type RevokeJob struct {
	Fid    Fid
	Signer Signer
}

// RevokeHandler is invoked once per drained job; the Engine supplies one
// that fans the job out across all six typed stores.
type RevokeHandler func(RevokeJob) error

// RevokeQueue is a durable FIFO of RevokeJobs persisted under the
// JobQueue prefix so a crash mid-drain resumes on restart (§5 durability).
// Grounded on the teacher's connection_pool.go reaper-goroutine idiom,
// adapted from a connection reaper to a job drain loop.
type RevokeQueue struct {
	db     KVStore
	logger *log.Logger

	mu   sync.Mutex
	next uint64 // next sequence number to assign
	head uint64 // lowest not-yet-dequeued sequence number

	notify chan struct{}
}

func NewRevokeQueue(db KVStore, logger *log.Logger) (*RevokeQueue, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	q := &RevokeQueue{db: db, logger: logger, notify: make(chan struct{}, 1)}
	err := db.View(func(txn Txn) error {
		return txn.Iterate([]byte{byte(PrefixJobQueue)}, true, func(key, value []byte) bool {
			q.next = binary.BigEndian.Uint64(key[1:9]) + 1
			return false
		})
	})
	if err != nil {
		return nil, err
	}
	err = db.View(func(txn Txn) error {
		return txn.Iterate([]byte{byte(PrefixJobQueue)}, false, func(key, value []byte) bool {
			q.head = binary.BigEndian.Uint64(key[1:9])
			return false
		})
	})
	return q, err
}

func encodeRevokeJob(j RevokeJob) []byte {
	buf := make([]byte, 0, 40)
	buf = appendUint64BE(buf, uint64(j.Fid))
	buf = append(buf, j.Signer[:]...)
	return buf
}

func decodeRevokeJob(b []byte) RevokeJob {
	var j RevokeJob
	j.Fid = Fid(binary.BigEndian.Uint64(b[:8]))
	copy(j.Signer[:], b[8:40])
	return j
}

// EnqueueTxn appends job inside an already-open transaction, so it commits
// atomically with the on-chain event that caused it.
func (q *RevokeQueue) EnqueueTxn(txn Txn, job RevokeJob) error {
	q.mu.Lock()
	seq := q.next
	q.next++
	q.mu.Unlock()
	if err := txn.Set(JobQueueKey(seq), encodeRevokeJob(job)); err != nil {
		return err
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the queue until ctx is cancelled, calling handle once per job.
// A handler error is logged and the loop continues with the next job (§7:
// "background workers log and continue on per-item failure") — it does not
// retry the same job indefinitely, since a poison job would otherwise wedge
// every subsequent revocation.
func (q *RevokeQueue) Run(ctx context.Context, handle RevokeHandler) {
	for {
		job, seq, ok, err := q.dequeue()
		if err != nil {
			q.logger.WithError(err).Error("revoke queue: dequeue failed")
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}
		if err := handle(job); err != nil {
			q.logger.WithFields(log.Fields{"fid": job.Fid}).WithError(err).
				Error("revoke queue: job failed, continuing")
		}
		if err := q.ack(seq); err != nil {
			q.logger.WithError(err).Error("revoke queue: ack failed")
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (q *RevokeQueue) dequeue() (RevokeJob, uint64, bool, error) {
	q.mu.Lock()
	seq := q.head
	q.mu.Unlock()

	var job RevokeJob
	var found bool
	err := q.db.View(func(txn Txn) error {
		raw, ok, err := txn.Get(JobQueueKey(seq))
		if err != nil || !ok {
			return err
		}
		job = decodeRevokeJob(raw)
		found = true
		return nil
	})
	return job, seq, found, err
}

func (q *RevokeQueue) ack(seq uint64) error {
	err := q.db.Update(func(txn Txn) error {
		return txn.Delete(JobQueueKey(seq))
	})
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.head = seq + 1
	q.mu.Unlock()
	return nil
}
