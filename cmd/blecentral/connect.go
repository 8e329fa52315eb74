package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/transport/goble"
	"github.com/srg/blecentral/pkg/config"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <identity>",
	Short: "Connect to a BLE device",
	Long: `Scan until the given device identity is discovered, request a connection,
and report the outcome.

The identity is the lowercase device identifier shown by the scan command.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectScanTimeout time.Duration
	connectVerbose     bool
	connectStayTime    time.Duration
)

func init() {
	connectCmd.Flags().DurationVarP(&connectScanTimeout, "scan-timeout", "d", 30*time.Second, "How long to scan for the device before giving up")
	connectCmd.Flags().DurationVar(&connectStayTime, "stay", 0, "Keep the connection open for this long before disconnecting (0 disconnects immediately after connecting)")
	connectCmd.Flags().BoolVar(&connectVerbose, "verbose", false, "Enable debug logging")
}

func runConnect(cmd *cobra.Command, args []string) error {
	identity := central.NormalizeIdentity(args[0])
	if identity == "" {
		return fmt.Errorf("empty device identity")
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	t, err := goble.New(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE transport: %w", err)
	}
	c := central.New(t, logger)
	defer func() {
		if err := c.Close(); err != nil {
			logger.WithError(err).Debug("Closing central")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := c.Subscribe()
	defer sub.Cancel()

	// Phase 1: scan until the identity shows up.
	scanCtx, cancel := context.WithTimeout(ctx, connectScanTimeout)
	defer cancel()

	if err := c.StartScan(""); err != nil {
		return err
	}
	fmt.Printf("Scanning for %s...\n", identity)

	if err := waitForStatus(scanCtx, c, sub, identity, central.StatusScanning); err != nil {
		return fmt.Errorf("device %q not discovered: %w", identity, err)
	}
	if err := c.StopScan(); err != nil {
		logger.WithError(err).Debug("Stopping scan")
	}

	// Phase 2: connect and wait for the outcome callback.
	if err := c.Connect(identity); err != nil {
		return err
	}
	fmt.Printf("Connecting to %s...\n", identity)

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.ConnectTimeout.Std())
	defer cancelConnect()

	if err := waitForStatus(connectCtx, c, sub, identity, central.StatusConnected); err != nil {
		return fmt.Errorf("connect to %q failed: %w", identity, err)
	}
	fmt.Printf("Connected to %s\n", identity)

	if connectStayTime > 0 {
		select {
		case <-time.After(connectStayTime):
		case <-ctx.Done():
		}
	}

	c.Disconnect(identity)
	fmt.Printf("Disconnected from %s\n", identity)
	return nil
}

// waitForStatus consumes subscription events until the device reaches at
// least the wanted status, the device drops to Disconnected, or ctx ends.
func waitForStatus(ctx context.Context, c *central.Central, sub *central.Subscription, identity string, want central.ConnectStatus) error {
	check := func() (bool, error) {
		for _, dev := range c.Snapshot() {
			if dev.Identity != identity {
				continue
			}
			if dev.Status == central.StatusDisconnected && want != central.StatusDisconnected {
				return false, fmt.Errorf("device reported disconnected")
			}
			if dev.Status >= want {
				return true, nil
			}
		}
		return false, nil
	}

	if done, err := check(); done || err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.Events():
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			if done, err := check(); done || err != nil {
				return err
			}
		}
	}
}
