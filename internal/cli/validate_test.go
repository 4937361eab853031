package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeValidate(t *testing.T, format, dir string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidTopology(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "topology"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Topology valid: 4 sensors, 2 entities, 3 enrichers")
	assert.NotContains(t, out, "⚠")
}

func TestValidateValidTopologyJSON(t *testing.T) {
	out, err := executeValidate(t, "json", filepath.Join("testdata", "topology"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.NotNil(t, resp.Data.Counts)
	assert.Equal(t, TopologyCounts{Sensors: 4, Entities: 2, Enrichers: 3}, *resp.Data.Counts)
}

func TestValidateCycleWarning(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "cyclic"))
	require.NoError(t, err, "cycles are warnings, not errors")
	assert.Contains(t, out, "✓ Topology valid")
	assert.Contains(t, out, "⚠ Self-triggering enricher detected: clamp → clamp")
}

func TestValidateCycleWarningJSON(t *testing.T) {
	out, err := executeValidate(t, "json", filepath.Join("testdata", "cyclic"))
	require.NoError(t, err)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, []string{"clamp", "clamp"}, resp.Data.Warnings[0].Path)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := executeValidate(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := executeValidate(t, "text", filepath.Join("testdata", "empty"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateUnknownSensor(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "invalid"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, `E101: enricher.copy.source: unknown sensor "ghost"`)
}

func TestValidateUnknownSensorJSON(t *testing.T) {
	out, err := executeValidate(t, "json", filepath.Join("testdata", "invalid"))
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  CLIError         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, "E101", resp.Error.Code)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "enricher.copy.source", resp.Data.Errors[0].Field)
}

func TestValidateStructureError(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "broken"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E007")
}
