/*
Package freeport finds a TCP port nobody is listening on.

The port is found by listening on port 0 of the loopback interface and reading
back what the operating system chose. The listener is closed before returning,
so this is a best effort allocation and not a reservation: another process may
take the port before the server that is handed it binds.
*/
package freeport

import (
	"fmt"
	"net"
)

// Get returns a currently unused loopback TCP port.
func Get() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("freeport: listen: %w", err)
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("freeport: unexpected address type %T", l.Addr())
	}
	return addr.Port, nil
}

// GetN returns n distinct unused ports. All the listeners are held until every
// port is known, so the ports are distinct from each other.
func GetN(n int) ([]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("freeport: cannot allocate %d ports", n)
	}
	ports := make([]int, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("freeport: listen: %w", err)
		}
		//nolint:gocritic // each listener must stay open until all ports are known
		defer l.Close()
		addr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return nil, fmt.Errorf("freeport: unexpected address type %T", l.Addr())
		}
		ports = append(ports, addr.Port)
	}
	return ports, nil
}
