package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/transport/goble"
	"github.com/srg/blecentral/pkg/config"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy devices and display the ranked device list.

Devices are deduplicated by identity and sorted by connection state, then by
signal strength. An optional prefix restricts the list to devices whose
name, address, or identity starts with the prefix.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanPrefix   string
	scanFormat   string
	scanWatch    bool
	scanVerbose  bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the config default)")
	scanCmd.Flags().StringVarP(&scanPrefix, "prefix", "p", "", "Only list devices whose name, address, or identity starts with this prefix")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously re-render the device list as it changes")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Enable debug logging")
}

// scanSettings resolves config-file values and flag overrides.
func scanSettings(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if scanDuration > 0 {
		cfg.ScanDuration = config.Duration(scanDuration)
	}
	if scanFormat != "" {
		cfg.OutputFormat = scanFormat
	}
	if scanPrefix != "" {
		cfg.ScanPrefix = scanPrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := scanSettings(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
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
	if d := cfg.ScanDuration.Std(); d > 0 && !scanWatch {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := c.StartScan(cfg.ScanPrefix); err != nil {
		return err
	}

	if scanWatch {
		return watchDevices(ctx, c, cfg, logger)
	}

	<-ctx.Done()
	if err := c.StopScan(); err != nil {
		logger.WithError(err).Debug("Stopping scan")
	}
	return outputSnapshot(c, cfg)
}

// watchDevices re-renders the device list whenever it changes, coalescing
// bursts of events down to one redraw per refresh interval.
func watchDevices(ctx context.Context, c *central.Central, cfg *config.Config, logger *logrus.Logger) error {
	sub := c.Subscribe()
	defer sub.Cancel()

	ticker := time.NewTicker(cfg.RefreshInterval.Std())
	defer ticker.Stop()

	clearScreen := stdoutIsTerminal() && cfg.OutputFormat == "table"
	dirty := true

	for {
		select {
		case <-ctx.Done():
			return outputSnapshot(c, cfg)
		case <-sub.Events():
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			if clearScreen {
				fmt.Print("\033[2J\033[H")
			}
			if err := outputSnapshot(c, cfg); err != nil {
				return err
			}
		}
	}
}

func outputSnapshot(c *central.Central, cfg *config.Config) error {
	devices := c.Snapshot()
	if cfg.OutputFormat == "json" {
		return renderJSON(os.Stdout, devices)
	}
	renderTable(os.Stdout, devices, stdoutIsTerminal())
	return nil
}
