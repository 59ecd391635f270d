package record

import "encoding/json"

type fieldOp int

const (
	opSet fieldOp = iota
	opDelete
	opAppendEvents
)

type field struct {
	op     fieldOp
	value  any
	events []Event
}

// Update is a partial record update. Each named field carries exactly one
// operation: set, delete, or (for the events log) append. Fields not named
// are left untouched.
type Update struct {
	fields map[string]field
}

func NewUpdate() *Update {
	return &Update{fields: make(map[string]field)}
}

// Set replaces the whole value of a top-level key.
func (u *Update) Set(key string, value any) *Update {
	u.fields[key] = field{op: opSet, value: value}
	return u
}

// Delete removes a top-level key from the record.
func (u *Update) Delete(key string) *Update {
	u.fields[key] = field{op: opDelete}
	return u
}

// AppendEvent appends one entry to the audit log; WhenDT is auto-filled at
// write time when empty.
func (u *Update) AppendEvent(e Event) *Update {
	return u.AppendEvents([]Event{e})
}

// AppendEvents appends entries in order to the audit log.
func (u *Update) AppendEvents(events []Event) *Update {
	existing := u.fields["events"]
	if existing.op != opAppendEvents {
		existing = field{op: opAppendEvents}
	}
	existing.events = append(existing.events, events...)
	u.fields["events"] = existing
	return u
}

// Empty reports whether the update names no fields at all.
func (u *Update) Empty() bool {
	return len(u.fields) == 0
}

// apply merges the update into the raw on-disk document. now stamps any
// appended events missing a timestamp.
func (u *Update) apply(doc map[string]json.RawMessage, now string) error {
	for key, f := range u.fields {
		switch f.op {
		case opDelete:
			delete(doc, key)
		case opAppendEvents:
			var events []Event
			if raw, ok := doc["events"]; ok {
				if err := json.Unmarshal(raw, &events); err != nil {
					return err
				}
			}
			for _, e := range f.events {
				if e.WhenDT == "" {
					e.WhenDT = now
				}
				events = append(events, e)
			}
			raw, err := json.Marshal(events)
			if err != nil {
				return err
			}
			doc["events"] = raw
		default:
			raw, err := json.Marshal(f.value)
			if err != nil {
				return err
			}
			doc[key] = raw
		}
	}
	return nil
}
