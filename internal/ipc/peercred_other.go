//go:build !linux && !darwin

package ipc

import "net"

// GetPeerCredentials is not supported on this platform.
func GetPeerCredentials(net.Conn) (*PeerCredentials, error) {
	return nil, ErrPeerCredentials
}
