package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestConfigureInvalidLevel(t *testing.T) {
	l := Logger()
	if err := l.Configure("nonsense", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	l := Logger()
	if err := l.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutputMirrorsConsole(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "app.log")

	l := Logger()
	if err := l.Configure("debug", "json", logPath, 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	l.WithComponent("test").Info("hello")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestJSONFieldNames(t *testing.T) {
	l := Logger()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	l.WithFields(Fields{"chain_id": "sol"}).Info("field check")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "level", "message"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing %q field in %v", key, entry)
		}
	}
	if entry["chain_id"] != "sol" {
		t.Errorf("custom field lost: %v", entry)
	}
}
