// Package audit is the entry point for recording access and audit events.
// Every call stamps the record, hands it to the archive client and returns
// immediately; storage failures never reach the caller.
package audit

import (
	"time"

	"github.com/onnwee/portal/internal/archive"
)

// Metadata is free-form context attached to an event.
type Metadata = archive.Metadata

// AccessInput describes one HTTP request against a protected resource.
// Method, Resource and StatusCode are required; empty optional strings are
// recorded as absent.
type AccessInput struct {
	Method     string
	Resource   string
	StatusCode int

	ActorID         string
	ActorRole       string
	ActorDepartment string
	IPAddress       string
	UserAgent       string

	Metadata Metadata
}

// AuditInput describes a state-changing action. Action is required.
type AuditInput struct {
	Action string

	ActorID     string
	ActorRole   string
	TargetID    string
	Description string

	Metadata Metadata
}

// optional maps an empty string to the absent marker.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (in AccessInput) record(now time.Time) archive.Record {
	return archive.NewAccessRecord(now, archive.AccessEntry{
		ActorID:         optional(in.ActorID),
		ActorRole:       optional(in.ActorRole),
		ActorDepartment: optional(in.ActorDepartment),
		IPAddress:       optional(in.IPAddress),
		Method:          in.Method,
		Resource:        in.Resource,
		StatusCode:      in.StatusCode,
		UserAgent:       optional(in.UserAgent),
		Metadata:        in.Metadata,
	})
}

func (in AuditInput) record(now time.Time) archive.Record {
	return archive.NewAuditRecord(now, archive.AuditEntry{
		Action:      in.Action,
		ActorID:     optional(in.ActorID),
		ActorRole:   optional(in.ActorRole),
		TargetID:    optional(in.TargetID),
		Description: optional(in.Description),
		Metadata:    in.Metadata,
	})
}
