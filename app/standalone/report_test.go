package standalone_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyscope/pyscope/app/standalone"
	"github.com/pyscope/pyscope/supervisor"
)

func TestWriteSampleCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")

	samples := []supervisor.Sample{
		{Elapsed: 0.1, RSS: 1024, CPUPercent: 12.5, Threads: 2, Children: 0},
		{Elapsed: 0.2, RSS: 2048, CPUPercent: 25, Threads: 3, Children: 1},
	}

	err := standalone.WriteSampleCSV(path, samples)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"elapsed", "rss", "cpu_percent", "threads", "children"}, rows[0])
	assert.Equal(t, []string{"0.100", "1024", "12.50", "2", "0"}, rows[1])
	assert.Equal(t, []string{"0.200", "2048", "25.00", "3", "1"}, rows[2])
}

func TestWriteSampleCSV_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")

	err := standalone.WriteSampleCSV(path, nil)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 1)
}
