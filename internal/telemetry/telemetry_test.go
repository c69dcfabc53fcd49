package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndShutdown(t *testing.T) {
	shutdown, err := Init("switch-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestInitRejectsEmptyServiceName(t *testing.T) {
	_, err := Init("")
	assert.Error(t, err)
}
