package tocclient

import "sync/atomic"

// WriteQuota is a bounded counter of write operations for one server
// session. Once exhausted, writes fail before any network call; reads are
// unaffected. A limit of 0 disables the ceiling.
//
// The quota is consumed after a write is confirmed sent, never on
// pre-flight failures, so the check happens before dispatch and the
// consume after.
type WriteQuota struct {
	limit int64
	used  atomic.Int64
}

// NewWriteQuota creates a quota with the given ceiling (0 = unlimited).
func NewWriteQuota(limit int) *WriteQuota {
	return &WriteQuota{limit: int64(limit)}
}

// Exhausted reports whether the ceiling has been reached.
func (q *WriteQuota) Exhausted() bool {
	return q.limit > 0 && q.used.Load() >= q.limit
}

// Consume records one sent write operation.
func (q *WriteQuota) Consume() {
	q.used.Add(1)
}

// Used returns the number of writes consumed so far.
func (q *WriteQuota) Used() int {
	return int(q.used.Load())
}

// Limit returns the configured ceiling (0 = unlimited).
func (q *WriteQuota) Limit() int {
	return int(q.limit)
}
