// Package multicast owns the two UDP sockets that face the local multicast
// group: a receive socket bound to and joined to the group, and a send socket
// with multicast loopback disabled so a node never hears its own writes.
package multicast

import (
	"errors"
	"fmt"
	"net"
)

const (
	// MaxDatagramSize is the largest datagram handled in either direction.
	MaxDatagramSize = 65535

	// DefaultTTL keeps multicast traffic on the local subnet.
	DefaultTTL = 1
)

// ErrWouldBlock is returned by Receive when no datagram is queued. It is an
// idle signal, not a failure.
var ErrWouldBlock = errors.New("multicast: no datagram available")

// Config describes the multicast group and the local interface to use.
type Config struct {
	// Group is the IPv4 multicast group address.
	Group net.IP
	// Port is the UDP port of the group.
	Port int
	// Interface is the IPv4 address of the local interface. Nil or 0.0.0.0
	// lets the kernel pick.
	Interface net.IP
	// TTL is the multicast hop limit. Zero means DefaultTTL.
	TTL int
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Interface == nil {
		c.Interface = net.IPv4zero
	}
	return c
}

func (c Config) validate() error {
	group := c.Group.To4()
	if group == nil {
		return fmt.Errorf("multicast: group %q is not an IPv4 address", c.Group)
	}
	if !group.IsMulticast() {
		return fmt.Errorf("multicast: %s is not a multicast address", group)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("multicast: invalid port %d", c.Port)
	}
	if c.Interface.To4() == nil {
		return fmt.Errorf("multicast: interface %q is not an IPv4 address", c.Interface)
	}
	return nil
}

// Conn pairs the receive and send sockets. The receive side is meant to be
// used by a single reader and the send side by a single writer.
type Conn struct {
	recv *net.UDPConn
	send *net.UDPConn
	dest *net.UDPAddr
}

// NewConn wraps already configured sockets. Datagrams passed to Send are
// written to dest.
func NewConn(recv, send *net.UDPConn, dest *net.UDPAddr) (*Conn, error) {
	if recv == nil || send == nil {
		return nil, errors.New("multicast: receive and send sockets are required")
	}
	if dest == nil {
		return nil, errors.New("multicast: destination address is required")
	}
	return &Conn{recv: recv, send: send, dest: dest}, nil
}

// Receive copies the next queued datagram into buf without blocking. It
// returns ErrWouldBlock when nothing is queued.
func (c *Conn) Receive(buf []byte) (int, net.Addr, error) {
	return receiveNonBlocking(c.recv, buf)
}

// Send writes payload as a single datagram to the group.
func (c *Conn) Send(payload []byte) error {
	if len(payload) > MaxDatagramSize {
		return fmt.Errorf("multicast: datagram of %d bytes exceeds %d", len(payload), MaxDatagramSize)
	}
	_, err := c.send.WriteToUDP(payload, c.dest)
	return err
}

// Destination returns the group address datagrams are sent to.
func (c *Conn) Destination() *net.UDPAddr {
	return c.dest
}

// LocalAddr returns the address of the receive socket.
func (c *Conn) LocalAddr() net.Addr {
	return c.recv.LocalAddr()
}

// Close closes both sockets.
func (c *Conn) Close() error {
	return errors.Join(c.recv.Close(), c.send.Close())
}

// InterfaceByIP returns the interface carrying ip. A nil or unspecified ip
// yields a nil interface, which means "kernel default" to the ipv4 package.
func InterfaceByIP(ip net.IP) (*net.Interface, error) {
	if ip == nil || ip.IsUnspecified() {
		return nil, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("multicast: list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("multicast: no interface has address %s", ip)
}
