package logger

import (
	"bytes"
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuffer(t *testing.T, verboseOn bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseOn)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestLevels_WhenVerbose(t *testing.T) {
	buf := withBuffer(t, true)

	Debug("embedding %d chunks", 3)
	Info("index at %s", "chroma_db")
	Warn("slow")

	assert.Equal(t, "[DEBUG] embedding 3 chunks\n[INFO] index at chroma_db\n[WARN] slow\n", buf.String())
}

func TestWarnAlwaysShown(t *testing.T) {
	buf := withBuffer(t, false)

	Debug("x")
	Info("y")
	Warn("index was built with %q", "hashing")

	assert.Equal(t, "[WARN] index was built with \"hashing\"\n", buf.String())
}

func TestStep(t *testing.T) {
	buf := withBuffer(t, true)

	done := Step("index build")
	done()

	assert.Regexp(t, regexp.MustCompile(`^\[INFO\] index build\.\.\.\n\[INFO\] index build done in \S+\n$`), buf.String())
}

func TestStep_SilentWhenNotVerbose(t *testing.T) {
	buf := withBuffer(t, false)

	Step("retrieval")()

	assert.Zero(t, buf.Len())
}
