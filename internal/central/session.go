package central

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/transport"
)

// ScanSession controls the Idle/Scanning state of the radio scan and owns
// the active prefix filter. Starting a session resets the registry's
// scanning partition; stopping leaves all partitions untouched.
type ScanSession struct {
	registry  *Registry
	transport transport.Transport
	logger    *logrus.Logger

	mu       sync.Mutex
	scanning bool
}

// NewScanSession creates an idle session.
func NewScanSession(registry *Registry, t transport.Transport, logger *logrus.Logger) *ScanSession {
	if logger == nil {
		logger = logrus.New()
	}
	return &ScanSession{
		registry:  registry,
		transport: t,
		logger:    logger,
	}
}

// Start installs prefix as the active scan filter, clears the scanning
// partition, and begins radio scanning with no service filter; prefix
// matching happens in the registry, not the radio. An empty prefix accepts
// every advertisement.
func (s *ScanSession) Start(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanning {
		return fmt.Errorf("scan already running")
	}

	s.registry.SetFilter(ScanFilter{Prefix: prefix})
	s.registry.ClearScanned()

	if err := s.transport.StartScan(); err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	s.scanning = true
	s.logger.WithField("prefix", prefix).Info("Scan started")
	return nil
}

// Stop ends radio scanning. Already-discovered records stay in place.
func (s *ScanSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return nil
	}
	s.scanning = false

	if err := s.transport.StopScan(); err != nil {
		// Best effort: a failed stop is indistinguishable from a no-op.
		s.logger.WithError(err).Warn("Failed to stop scan")
		return nil
	}
	s.logger.Info("Scan stopped")
	return nil
}

// IsScanning reports whether the session is active.
func (s *ScanSession) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}
