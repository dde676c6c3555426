package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupProvider_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{ServiceName: "forwardauth"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
