package record

import (
	"encoding/json"
	"time"

	"github.com/hostedmail/doms/internal/names"
)

// TimeLayout is the sortable timestamp format used throughout the record
// files. String comparison on this layout matches chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// Stamp renders a time in the record timestamp format.
func Stamp(t time.Time) string {
	return t.Format(TimeLayout)
}

// Event is one append-only audit log entry.
type Event struct {
	WhenDT string `json:"when_dt"`
	Desc   string `json:"desc"`
}

// UserRecord is one account. The account name keys the storage location and
// is injected on load; it is never written into the file.
type UserRecord struct {
	User        string          `json:"-"`
	UID         int             `json:"uid,omitempty"`
	Password    string          `json:"password,omitempty"`
	Email       string          `json:"email,omitempty"`
	MX          string          `json:"mx,omitempty"`
	CreatedDT   string          `json:"created_dt,omitempty"`
	AmendedDT   string          `json:"amended_dt,omitempty"`
	LastLoginDT string          `json:"last_login_dt,omitempty"`
	Domains     map[string]bool `json:"domains,omitempty"`
	Identities  []string        `json:"identities,omitempty"`
	Events      []Event         `json:"events,omitempty"`
}

// HasUID reports whether the account has ever been assigned a system UID.
// UIDs at or below 100 are reserved and never handed out.
func (r *UserRecord) HasUID() bool {
	return r.UID > 100
}

// IsActive reports whether the account itself is active: its self-domain's
// MX is verified.
func (r *UserRecord) IsActive() bool {
	if r.User == "" || r.Domains == nil {
		return false
	}
	return r.Domains[r.User]
}

// IsEmailActive reports whether an identity's domain is currently active
// for this account.
func (r *UserRecord) IsEmailActive(email string) bool {
	if r.Domains == nil {
		return false
	}
	_, dom := names.SplitEmail(email)
	if dom == "" {
		return false
	}
	return r.Domains[dom]
}

// ContentKey serializes the observable domains+identities content; two
// records with equal keys need no re-persist or MX re-check.
func (r *UserRecord) ContentKey() string {
	key, _ := json.Marshal(struct {
		Domains    map[string]bool `json:"domains"`
		Identities []string        `json:"identities"`
	}{r.Domains, r.Identities})
	return string(key)
}

// Clone returns a deep copy, so callers can mutate working state without
// aliasing the table snapshot.
func (r *UserRecord) Clone() *UserRecord {
	dup := *r
	if r.Domains != nil {
		dup.Domains = make(map[string]bool, len(r.Domains))
		for dom, active := range r.Domains {
			dup.Domains[dom] = active
		}
	}
	dup.Identities = append([]string(nil), r.Identities...)
	dup.Events = append([]Event(nil), r.Events...)
	return &dup
}
