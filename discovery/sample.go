package discovery

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/homewire/sma2mqtt/speedwire"
)

// WriteSample persists a decoded record as pretty-printed JSON. The
// bridge writes the first record it sees so discovery can later be
// regenerated without a live meter.
func WriteSample(path string, rec speedwire.Record) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal sample record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample record %s: %w", path, err)
	}
	return nil
}

// LoadSample reads a record previously written by WriteSample. Numeric
// values come back as float64, which the rest of the pipeline accepts.
func LoadSample(path string) (speedwire.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sample record %s: %w", path, err)
	}
	var rec speedwire.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse sample record %s: %w", path, err)
	}
	return rec, nil
}
