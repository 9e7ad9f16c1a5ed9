package retention

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/onnwee/portal/internal/archive"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports records as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports records as a JSON array.
	ExportFormatJSON ExportFormat = "json"
)

// ExportOptions configures record export.
type ExportOptions struct {
	Format  ExportFormat
	ActorID string // only records by this actor (optional)
	Limit   int    // 0 = no limit

	// AnonymizeBefore truncates the address of every access record stamped
	// before it. The zero value keeps all addresses.
	AnonymizeBefore time.Time
}

// exportRow flattens both record variants into one shape.
type exportRow struct {
	Type            string           `json:"type"`
	Timestamp       string           `json:"timestamp"`
	ActorID         string           `json:"actor_id,omitempty"`
	ActorRole       string           `json:"actor_role,omitempty"`
	ActorDepartment string           `json:"actor_department,omitempty"`
	IPAddress       string           `json:"ip_address,omitempty"`
	Method          string           `json:"method,omitempty"`
	Resource        string           `json:"resource,omitempty"`
	StatusCode      int              `json:"status_code,omitempty"`
	UserAgent       string           `json:"user_agent,omitempty"`
	Action          string           `json:"action,omitempty"`
	TargetID        string           `json:"target_id,omitempty"`
	Description     string           `json:"description,omitempty"`
	Metadata        archive.Metadata `json:"metadata"`
}

// ExportRecords renders recs in the requested format. Records are written in
// the order given; callers sort beforehand (Reader.Collect does).
func ExportRecords(recs []archive.Record, opts ExportOptions) ([]byte, error) {
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatJSON {
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	rows := make([]exportRow, 0, len(recs))
	for _, rec := range recs {
		row, ok := toRow(rec)
		if !ok {
			continue
		}
		if opts.ActorID != "" && row.ActorID != opts.ActorID {
			continue
		}
		if row.IPAddress != "" && !opts.AnonymizeBefore.IsZero() && stampedBefore(row.Timestamp, opts.AnonymizeBefore) {
			row.IPAddress = AnonymizeIP(row.IPAddress)
		}
		rows = append(rows, row)
		if opts.Limit > 0 && len(rows) == opts.Limit {
			break
		}
	}

	switch opts.Format {
	case ExportFormatCSV:
		return exportToCSV(rows)
	default:
		return exportToJSON(rows)
	}
}

func toRow(rec archive.Record) (exportRow, bool) {
	row := exportRow{Type: string(rec.Type()), Timestamp: rec.Timestamp()}

	if e, ok := rec.Access(); ok {
		row.ActorID = deref(e.ActorID)
		row.ActorRole = deref(e.ActorRole)
		row.ActorDepartment = deref(e.ActorDepartment)
		row.IPAddress = deref(e.IPAddress)
		row.Method = e.Method
		row.Resource = e.Resource
		row.StatusCode = e.StatusCode
		row.UserAgent = deref(e.UserAgent)
		row.Metadata = e.Metadata
		return row, true
	}
	if e, ok := rec.Audit(); ok {
		row.ActorID = deref(e.ActorID)
		row.ActorRole = deref(e.ActorRole)
		row.Action = e.Action
		row.TargetID = deref(e.TargetID)
		row.Description = deref(e.Description)
		row.Metadata = e.Metadata
		return row, true
	}
	return exportRow{}, false
}

// stampedBefore reports whether timestamp is before cutoff. Unparseable
// timestamps count as old so their addresses are never exported in full.
func stampedBefore(timestamp string, cutoff time.Time) bool {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return true
	}
	return ts.Before(cutoff)
}

func exportToCSV(rows []exportRow) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"Type",
		"Timestamp (UTC)",
		"Actor ID",
		"Actor Role",
		"Actor Department",
		"IP Address",
		"Method",
		"Resource",
		"Status Code",
		"User Agent",
		"Action",
		"Target ID",
		"Description",
		"Metadata",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		md, err := json.Marshal(row.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		status := ""
		if row.StatusCode != 0 {
			status = strconv.Itoa(row.StatusCode)
		}
		record := []string{
			row.Type,
			row.Timestamp,
			row.ActorID,
			row.ActorRole,
			row.ActorDepartment,
			row.IPAddress,
			row.Method,
			row.Resource,
			status,
			row.UserAgent,
			row.Action,
			row.TargetID,
			row.Description,
			string(md),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func exportToJSON(rows []exportRow) ([]byte, error) {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
