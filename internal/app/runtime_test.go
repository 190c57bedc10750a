package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/testing/guard"
)

func TestInTestModeFollowsEnvironment(t *testing.T) {
	require.Equal(t, guard.Env, testModeEnv)
	require.True(t, InTestMode())

	t.Cleanup(RefreshTestMode)
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
