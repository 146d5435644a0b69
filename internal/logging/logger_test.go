package logging_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sbm367/syft/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(true, &buf)

	logger.Debug("tensor added", "id", "first-tensor", "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "tensor added")
	assert.Contains(t, out, "id=first-tensor")
	assert.Contains(t, out, "err=boom")
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(false, &buf)

	logger.Error("should not appear")

	assert.Empty(t, buf.String())
}
