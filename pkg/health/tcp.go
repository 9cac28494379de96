package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker verifies that a mongos router accepts connections before the
// diagnostic session is opened
type TCPChecker struct {
	// Address is the router address (e.g., "router1.example.com:27017")
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP health checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Check dials the router once
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return unhealthy(start, fmt.Errorf("router %s unreachable: %w", t.Address, err))
	}
	defer conn.Close()

	return healthy(start, fmt.Sprintf("router %s reachable", t.Address))
}

// Type returns CheckTypeRouter
func (t *TCPChecker) Type() CheckType {
	return CheckTypeRouter
}
