package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type action struct {
	Label string
	Count int64
}

func TestRenderStats(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = e.Render(&buf, "stats.tmpl", map[string]any{
		"TotalLogs":     int64(4),
		"RetentionDays": 90,
		"Actions":       []action{{"Signup", 3}, {"Unregister", 1}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "total records : 4")
	assert.Contains(t, out, "90 days")
	assert.Contains(t, out, "Signup       3")

	buf.Reset()
	require.NoError(t, e.Render(&buf, "stats.tmpl", map[string]any{"TotalLogs": int64(0), "RetentionDays": 0}))
	assert.Contains(t, buf.String(), "disabled")
	assert.NotContains(t, buf.String(), "by action")
}

func TestRenderPurge(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	cutoff := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, e.Render(&buf, "purge.tmpl", map[string]any{"Deleted": int64(7), "Cutoff": cutoff}))
	assert.Equal(t, "purged 7 audit record(s) older than 2026-01-02T03:04:05Z", strings.TrimSpace(buf.String()))
}

func TestRenderUnknownTemplate(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	assert.Error(t, e.Render(&bytes.Buffer{}, "missing.tmpl", nil))

	var nilEngine *Engine
	assert.Error(t, nilEngine.Render(&bytes.Buffer{}, "stats.tmpl", nil))
}
