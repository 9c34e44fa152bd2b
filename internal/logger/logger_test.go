package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestPrettyFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&PrettyFormatter{NoColor: true})

	l.WithField("room", "abc").WithField("bytes", 42).Warn("chunk dropped")

	line := buf.String()
	if !strings.Contains(line, "WARN  chunk dropped") {
		t.Errorf("expected level and message, got %q", line)
	}
	if !strings.Contains(line, "bytes=42 room=abc") {
		t.Errorf("expected sorted fields, got %q", line)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Debug("hello")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected json output, got %q", buf.String())
	}
}

func TestPionFactoryScopes(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&PrettyFormatter{NoColor: true})

	NewPionFactory(l).NewLogger("ice").Infof("gathered %d", 3)

	if !strings.Contains(buf.String(), "gathered 3 pion=ice") {
		t.Errorf("expected scoped pion line, got %q", buf.String())
	}
}
