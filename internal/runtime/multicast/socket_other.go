//go:build !unix

package multicast

import (
	"context"
	"errors"
	"net"
)

// Open is only implemented on unix platforms.
func Open(context.Context, Config) (*Conn, error) {
	return nil, errors.ErrUnsupported
}

func receiveNonBlocking(*net.UDPConn, []byte) (int, net.Addr, error) {
	return 0, nil, errors.ErrUnsupported
}
