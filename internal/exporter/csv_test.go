package exporter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriter_WriteSimpleCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	headers := []string{"ticker", "value"}
	records := [][]string{{"HPG", "1.50"}, {"HSG", "-0.25"}}
	require.NoError(t, w.WriteSimpleCSV("out.csv", headers, records))

	raw, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "\xEF\xBB\xBF"), "expected UTF-8 BOM")

	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\xEF\xBB\xBF")))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, records[0], rows[1])
	assert.Equal(t, records[1], rows[2])
}

func TestCSVWriter_Append(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	require.NoError(t, w.WriteSimpleCSV("out.csv", []string{"a"}, [][]string{{"1"}}))
	require.NoError(t, w.WriteCSV("out.csv", WriteOptions{Records: [][]string{{"2"}}, Append: true}))

	raw, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3, "header plus two records")
	assert.Equal(t, "2", lines[2])
}

func TestCSVWriter_CreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	require.NoError(t, w.WriteSimpleCSV(filepath.Join("steel", "run1", "out.csv"), []string{"a"}, nil))
	_, err := os.Stat(filepath.Join(dir, "steel", "run1", "out.csv"))
	assert.NoError(t, err)
}

func TestCSVWriter_AbsolutePathBypassesReportDir(t *testing.T) {
	reportDir := t.TempDir()
	other := t.TempDir()
	w := NewCSVWriter(reportDir)

	target := filepath.Join(other, "out.csv")
	require.NoError(t, w.WriteSimpleCSV(target, []string{"a"}, nil))
	_, err := os.Stat(target)
	assert.NoError(t, err)
}

func TestStreamWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	sw, err := w.CreateStreamWriter("stream.csv", []string{"date", "score"})
	require.NoError(t, err)
	require.NoError(t, sw.WriteRecord([]string{"2024-01-02", "0.5000"}))
	require.NoError(t, sw.WriteRecord([]string{"2024-01-03", "-0.2500"}))
	require.NoError(t, sw.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "stream.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,score", lines[0])
	assert.Equal(t, "2024-01-03,-0.2500", lines[2])
}
