// Command bridge is the Icarus MCP-to-canister bridge's operator entry
// point: `bridge start --canister-id <id> [--network local|ic]
// [--timeout-seconds N] [--max-inflight N]` runs the bridge until EOF on
// stdin or SIGTERM, then drains in-flight tools/call work before exiting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/icarus-mcp/icarus/internal/bridge"
	"github.com/icarus-mcp/icarus/internal/canister"
	"github.com/icarus-mcp/icarus/internal/config"
	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/mcpserver"
	"github.com/icarus-mcp/icarus/internal/telemetry"
)

var flags config.Flags

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Icarus MCP-to-canister bridge",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Discover the canister's tool catalog and serve MCP over stdio",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&flags.CanisterID, "canister-id", "", "canister principal to bridge (required)")
	startCmd.Flags().StringVar(&flags.Network, "network", "local", `"local" or "ic"`)
	startCmd.Flags().IntVar(&flags.TimeoutSeconds, "timeout-seconds", 10, "per-call budget before Transport.Timeout")
	startCmd.Flags().IntVar(&flags.MaxInflight, "max-inflight", canister.DefaultMaxInflight, "max simultaneous in-flight canister calls")
	_ = startCmd.MarkFlagRequired("canister-id")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bridge:", err)
		os.Exit(1)
	}

	session := ids.NewSessionId(ids.Now(), uuid.NewString)
	log := newLogger(cfg.Debug).With(zap.String("session_id", session.String()))
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity := canister.DiskIdentity{}
	transport := canister.NewHTTPTransport(cfg.Network, identity)
	client := canister.NewClient(transport, cfg.CanisterID, cfg.Timeout, cfg.MaxInflight)

	tlog := telemetry.NewZapLogger(log.Sugar())
	b := bridge.New(client, cfg.CanisterID, tlog)

	if err := b.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "bridge: startup discovery failed:", err)
		os.Exit(1)
	}

	srv := mcpserver.New(b, os.Stdout, tlog, mcpserver.Options{
		ServerName:    "icarus-bridge",
		ServerVersion: version,
	})

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	done := make(chan struct {
		code mcpserver.ExitCode
		err  error
	}, 1)
	go func() {
		code, err := srv.Run(runCtx, os.Stdin)
		done <- struct {
			code mcpserver.ExitCode
			err  error
		}{code, err}
	}()

	select {
	case r := <-done:
		b.Drain()
		b.Stop()
		if r.err != nil {
			fmt.Fprintln(os.Stderr, "bridge:", r.err)
			os.Exit(1)
		}
		os.Exit(int(r.code))
	case <-b.Fatal():
		b.Drain()
		cancelRun()
		<-done
		b.Stop()
		fmt.Fprintln(os.Stderr, "bridge: invariant violation, exiting")
		os.Exit(2)
	}
	return nil
}

// newLogger builds a zap logger writing exclusively to stderr, never the
// default output sink, so nothing can reconfigure it onto the MCP stdout
// stream.
func newLogger(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// version is overridden at build time via -ldflags.
var version = "dev"
