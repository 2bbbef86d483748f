package rfwerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTransportErrorDeadlineExceeded(t *testing.T) {
	got := ClassifyTransportError(context.DeadlineExceeded)
	assert.True(t, got.Timeout)
}

func TestClassifyTransportErrorConnectionRefused(t *testing.T) {
	got := ClassifyTransportError(errors.New("dial tcp 10.0.0.1:443: connect: connection refused"))
	assert.True(t, got.ConnectionRefused)
}

func TestClassifyTransportErrorFallback(t *testing.T) {
	got := ClassifyTransportError(errors.New("some other failure"))
	assert.False(t, got.Timeout)
	assert.False(t, got.ConnectionRefused)
	assert.Zero(t, got.TlsCurlCode)
}
