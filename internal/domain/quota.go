package domain

// QuotaRecord is the locally tracked view of a subject's usage counter.
// Count is authoritative on the server; the client copy is reconciled by
// fetches, send responses, and subscription pushes (last authoritative
// write wins).
type QuotaRecord struct {
	SubjectKey string
	Count      int
	Limit      int

	// Degraded marks a record produced after a failed remote read. The
	// count is a conservative zero; callers may render it but should not
	// treat it as confirmed usage.
	Degraded bool
}

// Remaining returns how many sends are left before the gate blocks.
// It never goes negative.
func (q QuotaRecord) Remaining() int {
	if q.Count >= q.Limit {
		return 0
	}
	return q.Limit - q.Count
}

// QuotaUpdate is a single change event pushed by the quota store for a
// watched subject. UserID is set on user-scope updates matched by email,
// which is how an email-identified caller learns its resolved user id.
type QuotaUpdate struct {
	Scope  string `json:"scope"`
	Key    string `json:"key"`
	Count  int    `json:"count"`
	UserID string `json:"user_id,omitempty"`
}
