package retention

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/portal/internal/archive"
)

func exportFixture() []archive.Record {
	base := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	role := "admin"
	target := "u2"
	desc := "granted admin, with \"quotes\""

	return []archive.Record{
		accessAt(base, "u1", "192.168.1.100"),
		archive.NewAuditRecord(base.Add(time.Minute), archive.AuditEntry{
			Action:      "role.grant",
			ActorID:     strPtr("u1"),
			ActorRole:   &role,
			TargetID:    &target,
			Description: &desc,
			Metadata:    archive.Metadata{"scope": "hr"},
		}),
		accessAt(base.Add(2*time.Hour), "u3", "2001:db8:85a3::8a2e:370:7334"),
	}
}

func strPtr(s string) *string { return &s }

func TestExportRecords_UnsupportedFormat(t *testing.T) {
	if _, err := ExportRecords(exportFixture(), ExportOptions{Format: "xml"}); err == nil {
		t.Error("ExportRecords(xml) error = nil, want error")
	}
}

func TestExportRecords_CSV(t *testing.T) {
	data, err := ExportRecords(exportFixture(), ExportOptions{Format: ExportFormatCSV})
	if err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("csv ReadAll() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "Type" || len(rows[0]) != 14 {
		t.Errorf("header = %v", rows[0])
	}

	access := rows[1]
	if access[0] != "access" || access[1] != "2024-03-09T10:00:00.000Z" || access[2] != "u1" {
		t.Errorf("access row = %v", access)
	}
	if access[5] != "192.168.1.100" || access[6] != "GET" || access[8] != "200" || access[13] != "{}" {
		t.Errorf("access row = %v", access)
	}

	audit := rows[2]
	if audit[0] != "audit" || audit[10] != "role.grant" || audit[11] != "u2" {
		t.Errorf("audit row = %v", audit)
	}
	if audit[8] != "" {
		t.Errorf("audit status column = %q, want empty", audit[8])
	}
	if audit[12] != `granted admin, with "quotes"` {
		t.Errorf("description = %q", audit[12])
	}
	if audit[13] != `{"scope":"hr"}` {
		t.Errorf("metadata = %q", audit[13])
	}
}

func TestExportRecords_JSON(t *testing.T) {
	data, err := ExportRecords(exportFixture(), ExportOptions{Format: ExportFormatJSON})
	if err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0]["method"] != "GET" || rows[0]["status_code"] != float64(200) {
		t.Errorf("access row = %v", rows[0])
	}
	if _, ok := rows[0]["action"]; ok {
		t.Errorf("access row carries action: %v", rows[0])
	}
	if rows[1]["action"] != "role.grant" || rows[1]["actor_role"] != "admin" {
		t.Errorf("audit row = %v", rows[1])
	}
}

func TestExportRecords_EmptyJSON(t *testing.T) {
	data, err := ExportRecords(nil, ExportOptions{Format: ExportFormatJSON})
	if err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("ExportRecords(nil) = %s, want []", data)
	}
}

func TestExportRecords_FilterAndLimit(t *testing.T) {
	recs := exportFixture()

	data, err := ExportRecords(recs, ExportOptions{Format: ExportFormatCSV, ActorID: "u1"})
	if err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 3 {
		t.Errorf("lines = %d, want header + 2 records by u1", n)
	}

	data, err = ExportRecords(recs, ExportOptions{Format: ExportFormatCSV, Limit: 1})
	if err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("lines = %d, want header + 1 record", n)
	}
}

func TestExportRecords_AnonymizesOldAddresses(t *testing.T) {
	cutoff := time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC)
	data, err := ExportRecords(exportFixture(), ExportOptions{Format: ExportFormatJSON, AnonymizeBefore: cutoff})
	if err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}

	var rows []exportRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if rows[0].IPAddress != "192.168.1.0" {
		t.Errorf("old address = %q, want 192.168.1.0", rows[0].IPAddress)
	}
	if rows[2].IPAddress != "2001:db8:85a3::8a2e:370:7334" {
		t.Errorf("recent address = %q, want it untouched", rows[2].IPAddress)
	}
}

func TestStampedBefore(t *testing.T) {
	cutoff := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		ts   string
		want bool
	}{
		{"2024-03-08T23:59:59.999Z", true},
		{"2024-03-09T00:00:00.000Z", false},
		{"garbage", true},
	}
	for _, tt := range tests {
		if got := stampedBefore(tt.ts, cutoff); got != tt.want {
			t.Errorf("stampedBefore(%q) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}
