// Package sampledata writes hive-partitioned parquet swap logs. It backs the
// seed command for local development and the extraction tests, producing the
// same layout the ingestion side writes: chain=<id>/date=<day>/hour=<h>/.
package sampledata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// SwapRecord is one raw swap log row. Date and hour are carried by the
// partition directories, not by the file itself.
type SwapRecord struct {
	OrderID     string `parquet:"name=orderId, type=BYTE_ARRAY, convertedtype=UTF8"`
	InputToken  string `parquet:"name=inputToken, type=BYTE_ARRAY, convertedtype=UTF8"`
	OutputToken string `parquet:"name=outputToken, type=BYTE_ARRAY, convertedtype=UTF8"`
	Request     string `parquet:"name=request, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// DexLeg is one (dex, weight) split inside a sub-router.
type DexLeg struct {
	Dex    string `json:"dex"`
	Weight int    `json:"weight"`
}

type SubRouter struct {
	Dexes []DexLeg `json:"dexes"`
}

type RoutePlan struct {
	SubRouters []SubRouter `json:"subRouters"`
}

// SingleRoute wraps legs in one route plan with one sub-router, the shape the
// vast majority of production requests take.
func SingleRoute(legs ...DexLeg) RoutePlan {
	return RoutePlan{SubRouters: []SubRouter{{Dexes: legs}}}
}

// SwapRequest renders route plans as the nested request payload.
func SwapRequest(plans ...RoutePlan) string {
	payload := map[string]interface{}{
		"swapInfo": map[string]interface{}{
			"routePlans": plans,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// The payload is built from plain structs and maps only.
		panic(err)
	}
	return string(data)
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}
func (mfw *memoryFileWriter) Read(b []byte) (int, error) { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }

// WriteHour encodes records as a snappy-compressed parquet file under the
// partition directory for (chainID, date, hour) and returns the file path.
// Date must be formatted YYYY-MM-DD.
func WriteHour(root, chainID, date string, hour int, records []SwapRecord) (string, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(SwapRecord), 1)
	if err != nil {
		return "", fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return "", fmt.Errorf("writing parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return "", fmt.Errorf("finalizing parquet file: %w", err)
	}

	dir := filepath.Join(root,
		fmt.Sprintf("chain=%s", chainID),
		fmt.Sprintf("date=%s", date),
		fmt.Sprintf("hour=%d", hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating partition directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+".parquet")
	if err := os.WriteFile(path, fw.buffer.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing parquet file: %w", err)
	}
	return path, nil
}
