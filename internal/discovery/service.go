package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service represents a streaming server found on the network
type Service struct {
	// Instance is the mDNS instance name (e.g., "lab-bench")
	Instance string

	// Hostname is the mDNS hostname (e.g., "eeg-pi.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the HTTP port
	Port int

	// Metadata contains the TXT record data
	// Common fields: "version", "endpoint", "state"
	Metadata map[string]string

	// DiscoveredAt is when the service was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("OpenBCI server %s (%s) at %s", s.Instance, s.Hostname, s.hostPort())
}

func (s *Service) hostPort() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// BaseURL returns the HTTP base URL for the service
func (s *Service) BaseURL() string {
	return "http://" + s.hostPort()
}

// WebSocketURL returns the URL of the live sample socket
func (s *Service) WebSocketURL() string {
	return "ws://" + s.hostPort() + "/ws"
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
