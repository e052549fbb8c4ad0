package remote

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// ConnectivityPorts are reported by the connectivity test.
var ConnectivityPorts = []int{22, 2222, 222, 22022, 8022, 1022, 22222, 21098, 2288}

// PortResult reports whether a TCP connection to Port succeeded.
type PortResult struct {
	Port int
	Open bool
}

// Probe attempts a TCP connection to every port concurrently.
// Results keep the order of ports.
func Probe(ctx context.Context, host string, ports []int, timeout time.Duration) []PortResult {
	results := make([]PortResult, len(ports))
	g, ctx := errgroup.WithContext(ctx)

	for i, port := range ports {
		results[i].Port = port
		g.Go(func() error {
			results[i].Open = portOpen(ctx, host, port, timeout)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// OpenPorts filters results to the open ports, preserving order.
func OpenPorts(results []PortResult) []int {
	open := make([]int, 0, len(results))
	for _, r := range results {
		if r.Open {
			open = append(open, r.Port)
		}
	}
	return open
}

func portOpen(ctx context.Context, host string, port int, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
