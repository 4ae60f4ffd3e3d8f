package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changeledger/changeledger/pkg/audit"
)

func TestExportJSON(t *testing.T) {
	logs := []*audit.Log{sampleLog("log-1", time.Now().UTC())}

	data, err := Export(logs, ExportFormatJSON)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "log-1", decoded[0]["id"])
}

func TestExportNDJSON(t *testing.T) {
	logs := []*audit.Log{
		sampleLog("log-1", time.Now().UTC()),
		sampleLog("log-2", time.Now().UTC()),
	}

	data, err := Export(logs, ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	}
}

func TestExportCSV(t *testing.T) {
	withChange := sampleLog("log-1", time.Now().UTC())
	bare := sampleLog("log-2", time.Now().UTC())
	bare.PropertyChanges = nil

	data, err := Export([]*audit.Log{withChange, bare}, ExportFormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Header plus one row per property change, one row for the bare log
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PropertyName")
	assert.Contains(t, lines[1], "Status")
	assert.Contains(t, lines[2], "log-2")
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := Export(nil, ExportFormat("xml"))
	assert.Error(t, err)
}

func TestParseExportFormat(t *testing.T) {
	format, err := ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatJSON, format)

	format, err = ParseExportFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, format)

	_, err = ParseExportFormat("parquet")
	assert.Error(t, err)
}

func TestExportFormatContentType(t *testing.T) {
	assert.Equal(t, "application/json", ExportFormatJSON.ContentType())
	assert.Equal(t, "text/csv", ExportFormatCSV.ContentType())
	assert.Equal(t, "application/x-ndjson", ExportFormatNDJSON.ContentType())
}
