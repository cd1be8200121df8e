package histdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robopilot/robopilot/internal/market"
)

// Mirror writes fetched series to a durable CSV directory for offline
// inspection.
type Mirror struct {
	dir string
}

// NewMirror returns nil when no directory is configured, disabling the
// mirror.
func NewMirror(dir string) *Mirror {
	if dir == "" {
		return nil
	}
	return &Mirror{dir: dir}
}

func (m *Mirror) Write(symbol string, candles []market.Candle) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}

	name := strings.ToUpper(strings.ReplaceAll(symbol, "=", "_")) + ".csv"
	f, err := os.Create(filepath.Join(m.dir, name))
	if err != nil {
		return fmt.Errorf("create mirror file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			c.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatInt(c.Volume, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
