//go:build unix

package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Open creates both sockets. The receive socket is bound to group:port with
// SO_REUSEADDR and joined to the group on the configured interface; the send
// socket is bound to the interface address with loopback disabled.
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ifi, err := InterfaceByIP(cfg.Interface)
	if err != nil {
		return nil, err
	}

	group := &net.UDPAddr{IP: cfg.Group.To4(), Port: cfg.Port}
	lc := net.ListenConfig{Control: reuseAddr}

	recv, err := listenUDP(ctx, lc, group.String())
	if err != nil {
		return nil, fmt.Errorf("multicast: bind receive socket: %w", err)
	}
	rp := ipv4.NewPacketConn(recv)
	if err := rp.SetMulticastTTL(cfg.TTL); err != nil {
		recv.Close()
		return nil, fmt.Errorf("multicast: set receive TTL: %w", err)
	}
	if err := rp.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		recv.Close()
		return nil, fmt.Errorf("multicast: join group %s: %w", group.IP, err)
	}

	send, err := listenUDP(ctx, lc, net.JoinHostPort(cfg.Interface.String(), strconv.Itoa(0)))
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("multicast: bind send socket: %w", err)
	}
	if err := configureSender(ipv4.NewPacketConn(send), ifi, cfg.TTL); err != nil {
		recv.Close()
		send.Close()
		return nil, err
	}

	return NewConn(recv, send, group)
}

func configureSender(p *ipv4.PacketConn, ifi *net.Interface, ttl int) error {
	if err := p.SetMulticastTTL(ttl); err != nil {
		return fmt.Errorf("multicast: set send TTL: %w", err)
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		return fmt.Errorf("multicast: disable loopback: %w", err)
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("multicast: set outgoing interface %s: %w", ifi.Name, err)
		}
	}
	return nil
}

func listenUDP(ctx context.Context, lc net.ListenConfig, address string) (*net.UDPConn, error) {
	pc, err := lc.ListenPacket(ctx, "udp4", address)
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected conn type %T", pc)
	}
	return conn, nil
}

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	if sockErr != nil {
		return os.NewSyscallError("setsockopt SO_REUSEADDR", sockErr)
	}
	return nil
}

// receiveNonBlocking issues a single MSG_DONTWAIT recvfrom on the socket
// instead of parking on the runtime poller.
func receiveNonBlocking(conn *net.UDPConn, buf []byte) (int, net.Addr, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, nil, err
	}

	var (
		n       int
		from    unix.Sockaddr
		recvErr error
	)
	if err := raw.Read(func(fd uintptr) bool {
		n, from, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		return true
	}); err != nil {
		return 0, nil, err
	}

	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EWOULDBLOCK) || errors.Is(recvErr, unix.EINTR) {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, os.NewSyscallError("recvfrom", recvErr)
	}

	return n, sockaddrToUDP(from), nil
}

func sockaddrToUDP(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, a.Addr[:])
		return &net.UDPAddr{IP: ip, Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.UDPAddr{IP: ip, Port: a.Port}
	default:
		return nil
	}
}
