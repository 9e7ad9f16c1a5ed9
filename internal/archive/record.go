// Package archive writes access and audit log records to an append-only
// object store, falling back to a local sink whenever the store is
// unconfigured or unreachable.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecordType discriminates the two log record variants.
type RecordType string

const (
	// TypeAccess marks an access log record.
	TypeAccess RecordType = "access"
	// TypeAudit marks an audit log record.
	TypeAudit RecordType = "audit"
)

// TimestampFormat is the RFC 3339 UTC layout, with milliseconds, stamped on
// every record.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrUnknownRecordType is returned when decoding a record with an
// unrecognized type discriminator.
var ErrUnknownRecordType = errors.New("unknown record type")

// Metadata is a free-form key/value mapping attached to an entry.
type Metadata map[string]any

// AccessEntry describes one request against a protected resource.
// Optional fields are nil when absent and serialize as JSON null.
type AccessEntry struct {
	ActorID         *string  `json:"actorId"`
	ActorRole       *string  `json:"actorRole"`
	ActorDepartment *string  `json:"actorDepartment"`
	IPAddress       *string  `json:"ipAddress"`
	Method          string   `json:"method"`
	Resource        string   `json:"resource"`
	StatusCode      int      `json:"statusCode"`
	UserAgent       *string  `json:"userAgent"`
	Metadata        Metadata `json:"metadata"`
}

// AuditEntry describes one privileged action.
type AuditEntry struct {
	Action      string   `json:"action"`
	ActorID     *string  `json:"actorId"`
	ActorRole   *string  `json:"actorRole"`
	TargetID    *string  `json:"targetId"`
	Description *string  `json:"description"`
	Metadata    Metadata `json:"metadata"`
}

// Record is an immutable, timestamped, typed log record. The zero value is
// not useful; build records with NewAccessRecord or NewAuditRecord.
type Record struct {
	typ       RecordType
	timestamp string
	access    AccessEntry
	audit     AuditEntry
}

// NewAccessRecord stamps an access entry with now (in UTC).
func NewAccessRecord(now time.Time, e AccessEntry) Record {
	e.Metadata = cloneMetadata(e.Metadata)
	return Record{typ: TypeAccess, timestamp: formatTimestamp(now), access: e}
}

// NewAuditRecord stamps an audit entry with now (in UTC).
func NewAuditRecord(now time.Time, e AuditEntry) Record {
	e.Metadata = cloneMetadata(e.Metadata)
	return Record{typ: TypeAudit, timestamp: formatTimestamp(now), audit: e}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// cloneMetadata deep-copies m through its JSON form so the record shares no
// map or slice with the caller. Values JSON cannot encode are replaced by
// their fmt rendering. A nil map becomes an empty one so that it serializes
// as {}.
func cloneMetadata(m Metadata) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = freezeValue(v)
	}
	return out
}

func freezeValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

// Type returns the record discriminator.
func (r Record) Type() RecordType { return r.typ }

// Timestamp returns the RFC 3339 UTC timestamp captured at creation.
func (r Record) Timestamp() string { return r.timestamp }

// Access returns the access payload; ok is false for audit records.
func (r Record) Access() (AccessEntry, bool) {
	if r.typ != TypeAccess {
		return AccessEntry{}, false
	}
	e := r.access
	e.Metadata = cloneMetadata(e.Metadata)
	return e, true
}

// Audit returns the audit payload; ok is false for access records.
func (r Record) Audit() (AuditEntry, bool) {
	if r.typ != TypeAudit {
		return AuditEntry{}, false
	}
	e := r.audit
	e.Metadata = cloneMetadata(e.Metadata)
	return e, true
}

type header struct {
	Type      RecordType `json:"type"`
	Timestamp string     `json:"timestamp"`
}

// MarshalJSON flattens the discriminator, timestamp and payload into one
// object.
func (r Record) MarshalJSON() ([]byte, error) {
	h := header{Type: r.typ, Timestamp: r.timestamp}
	switch r.typ {
	case TypeAccess:
		return json.Marshal(struct {
			header
			AccessEntry
		}{h, r.access})
	case TypeAudit:
		return json.Marshal(struct {
			header
			AuditEntry
		}{h, r.audit})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, r.typ)
	}
}

// UnmarshalJSON decodes a record previously produced by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}

	out := Record{typ: h.Type, timestamp: h.Timestamp}
	switch h.Type {
	case TypeAccess:
		if err := json.Unmarshal(data, &out.access); err != nil {
			return err
		}
		out.access.Metadata = cloneMetadata(out.access.Metadata)
	case TypeAudit:
		if err := json.Unmarshal(data, &out.audit); err != nil {
			return err
		}
		out.audit.Metadata = cloneMetadata(out.audit.Metadata)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRecordType, h.Type)
	}

	*r = out
	return nil
}
