package standalone

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pyscope/pyscope/supervisor"
)

var csvHeader = []string{"elapsed", "rss", "cpu_percent", "threads", "children"}

// WriteSampleCSV writes the collected samples to the given file, one
// row per sample.
func WriteSampleCSV(path string, samples []supervisor.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, smp := range samples {
		row := []string{
			strconv.FormatFloat(smp.Elapsed, 'f', 3, 64),
			strconv.FormatUint(smp.RSS, 10),
			strconv.FormatFloat(smp.CPUPercent, 'f', 2, 64),
			strconv.FormatInt(int64(smp.Threads), 10),
			strconv.Itoa(smp.Children),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}
