//go:build !linux

package server

import (
	"log"
	"net"
)

// listenConfig ignores reusePort outside Linux.
func listenConfig(reusePort bool) net.ListenConfig {
	if reusePort {
		log.Printf("server: SO_REUSEPORT not supported on this platform, ignoring")
	}
	return net.ListenConfig{}
}
