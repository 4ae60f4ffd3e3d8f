package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
)

// ExportFormat selects the wire format of an export
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ContentType returns the HTTP content type for the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Export serializes audit logs in the given format. CSV flattens each
// property change into its own row.
func Export(logs []*audit.Log, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON:
		return exportJSON(logs)
	case ExportFormatNDJSON:
		return exportNDJSON(logs)
	case ExportFormatCSV:
		return exportCSV(logs)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportJSON exports audit logs as a JSON array
func exportJSON(logs []*audit.Log) ([]byte, error) {
	return json.MarshalIndent(logs, "", "  ")
}

// exportNDJSON exports audit logs as newline-delimited JSON
func exportNDJSON(logs []*audit.Log) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, log := range logs {
		if err := encoder.Encode(log); err != nil {
			return nil, fmt.Errorf("failed to encode audit log: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports audit logs as CSV, one row per property change. Logs
// without property changes still get one row with empty change columns.
func exportCSV(logs []*audit.Log) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"LogID",
		"EntityID",
		"EntityName",
		"State",
		"CorrelationID",
		"SessionID",
		"SnapshotID",
		"CreatedAt",
		"CreatorID",
		"PropertyName",
		"PropertyType",
		"OriginalValue",
		"NewValue",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, log := range logs {
		base := []string{
			log.ID,
			log.EntityID,
			log.EntityName,
			log.State.String(),
			formatStringPtr(log.CorrelationID),
			formatStringPtr(log.SessionID),
			formatStringPtr(log.SnapshotID),
			log.CreatedAt.Format(time.RFC3339Nano),
			formatStringPtr(log.CreatorID),
		}

		if len(log.PropertyChanges) == 0 {
			row := append(append([]string{}, base...), "", "", "", "")
			if err := writer.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write CSV row: %w", err)
			}
			continue
		}

		for _, change := range log.PropertyChanges {
			row := append(append([]string{}, base...),
				change.PropertyName,
				change.PropertyType,
				formatStringPtr(change.OriginalValue),
				formatStringPtr(change.NewValue),
			)
			if err := writer.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// formatStringPtr formats a string pointer, returning empty string for nil
func formatStringPtr(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}

// ParseExportFormat validates a format string from a request
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(raw) {
	case ExportFormatJSON, ExportFormatNDJSON, ExportFormatCSV:
		return ExportFormat(raw), nil
	case "":
		return ExportFormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", raw)
}
