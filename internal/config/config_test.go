package config

import (
	"testing"

	"github.com/icarus-mcp/icarus/internal/canister"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCanisterID = "rrkah-fqaaa-aaaaa-aaaaq-cai"

func TestResolve_Defaults(t *testing.T) {
	cfg, err := Resolve(Flags{CanisterID: validCanisterID})
	require.NoError(t, err)
	assert.Equal(t, canister.NetworkLocal, cfg.Network)
	assert.Equal(t, canister.DefaultMaxInflight, cfg.MaxInflight)
	assert.Equal(t, validCanisterID, cfg.CanisterID.String())
}

func TestResolve_MissingCanisterID(t *testing.T) {
	_, err := Resolve(Flags{})
	require.Error(t, err)
}

func TestResolve_InvalidNetwork(t *testing.T) {
	_, err := Resolve(Flags{CanisterID: validCanisterID, Network: "staging"})
	require.Error(t, err)
}

func TestResolve_ICNetworkAndOverrides(t *testing.T) {
	cfg, err := Resolve(Flags{CanisterID: validCanisterID, Network: "ic", TimeoutSeconds: 30, MaxInflight: 4})
	require.NoError(t, err)
	assert.Equal(t, canister.NetworkIC, cfg.Network)
	assert.Equal(t, 4, cfg.MaxInflight)
}

func TestResolve_DebugFromEnv(t *testing.T) {
	t.Setenv("ICARUS_DEBUG", "1")
	cfg, err := Resolve(Flags{CanisterID: validCanisterID})
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}
