package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, "WARN", "json")

	l.Info("should be dropped")
	l.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("INFO record emitted at WARN level: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("WARN record missing: %s", out)
	}
}

func TestBuildInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, "nonsense", "json")

	l.Debug("debug line")
	l.Info("info line")

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Errorf("DEBUG record emitted at fallback INFO level: %s", out)
	}
	if !strings.Contains(out, "info line") {
		t.Errorf("INFO record missing: %s", out)
	}
}

func TestBuildJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, "INFO", "json")

	l.Info("hello", "key", "value")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("key = %v, want value", record["key"])
	}
}

func TestBuildTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, "INFO", "text")

	l.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output missing logfmt record: %s", buf.String())
	}
}
