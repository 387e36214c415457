//go:build !unix && !windows

package sink

import "syscall"

func enableBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
