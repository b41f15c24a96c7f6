// Package config resolves the bridge's runtime configuration: CLI flags
// bound by cmd/bridge's cobra command, with environment-variable fallback
// for anything not exposed as a flag.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/icarus-mcp/icarus/internal/canister"
	"github.com/icarus-mcp/icarus/internal/ids"
)

// Config holds everything cmd/bridge needs to construct a canister.Client,
// a bridge.Bridge, and an mcpserver.Server.
type Config struct {
	CanisterID  ids.CanisterId
	Network     canister.Network
	Timeout     time.Duration
	MaxInflight int
	Debug       bool
}

// Flags carries the raw, unvalidated flag values cobra parsed from the
// command line for `bridge start`.
type Flags struct {
	CanisterID     string
	Network        string
	TimeoutSeconds int
	MaxInflight    int
}

// Resolve validates Flags and layers in environment-variable fallback for
// settings with no flag of their own (ICARUS_DEBUG).
func Resolve(f Flags) (*Config, error) {
	if f.CanisterID == "" {
		return nil, fmt.Errorf("config: --canister-id is required")
	}
	canisterID, err := ids.NewCanisterId(f.CanisterID)
	if err != nil {
		return nil, fmt.Errorf("config: invalid --canister-id: %w", err)
	}

	network := canister.NetworkLocal
	switch f.Network {
	case "", "local":
		network = canister.NetworkLocal
	case "ic":
		network = canister.NetworkIC
	default:
		return nil, fmt.Errorf("config: --network must be %q or %q, got %q", "local", "ic", f.Network)
	}

	timeoutSeconds := f.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}

	maxInflight := f.MaxInflight
	if maxInflight <= 0 {
		maxInflight = canister.DefaultMaxInflight
	}

	return &Config{
		CanisterID:  canisterID,
		Network:     network,
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		MaxInflight: maxInflight,
		Debug:       debugFromEnv(),
	}, nil
}

// debugFromEnv reads ICARUS_DEBUG, the one setting carried by the
// environment rather than a flag.
func debugFromEnv() bool {
	v := os.Getenv("ICARUS_DEBUG")
	return v == "1" || v == "true"
}
