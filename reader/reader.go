// Package reader locates hive-partitioned parquet fragments for a chain and
// time range and renders them into a single relation DuckDB can scan.
package reader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	// ErrInvalidFormat is returned when a range bound does not parse as
	// "YYYY-MM-DD HH:MM:SS".
	ErrInvalidFormat = errors.New("reader: time must be formatted as YYYY-MM-DD HH:MM:SS")

	// ErrInvalidRange is returned when the begin time is after the end time.
	ErrInvalidRange = errors.New("reader: begin time is after end time")

	// ErrNoPatterns is returned when a union is requested over zero fragments.
	ErrNoPatterns = errors.New("reader: no parquet patterns to read")
)

// PatternsForRange returns one glob pattern per calendar day covered by the
// half-open bound [begin, end], both inclusive at day granularity. Patterns
// follow the ingestion layout chain=<id>/date=<day>/hour=*/<file>.parquet.
func PatternsForRange(root, chainID, beginTime, endTime string) ([]string, error) {
	begin, err := time.Parse(timeLayout, beginTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, beginTime)
	}
	end, err := time.Parse(timeLayout, endTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, endTime)
	}
	if begin.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, beginTime, endTime)
	}

	chainRoot := filepath.Join(root, "chain="+chainID)

	var patterns []string
	cur := begin.Truncate(24 * time.Hour)
	endDay := end.Truncate(24 * time.Hour)
	for !cur.After(endDay) {
		day := cur.Format("2006-01-02")
		patterns = append(patterns, filepath.Join(chainRoot, "date="+day, "hour=*", "*.parquet"))
		cur = cur.AddDate(0, 0, 1)
	}
	return patterns, nil
}

// UnionAll renders the patterns into a UNION ALL of read_parquet scans with
// hive partitioning enabled, suitable for use as a FROM source. Patterns
// containing single quotes are rejected rather than escaped.
func UnionAll(patterns []string) (string, error) {
	if len(patterns) == 0 {
		return "", ErrNoPatterns
	}

	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.Contains(p, "'") {
			return "", fmt.Errorf("reader: pattern contains a quote: %q", p)
		}
		parts = append(parts, fmt.Sprintf("SELECT * FROM read_parquet('%s', hive_partitioning = true)", p))
	}
	return strings.Join(parts, " UNION ALL "), nil
}
