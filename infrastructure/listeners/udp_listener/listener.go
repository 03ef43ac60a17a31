package udp_listener

import (
	"fmt"
	"net"
	"net/netip"

	"veiltun/application"
)

// UdpTransport adapts one bound UDP socket to the engine's datagram
// collaborator. Source addresses are unmapped, so an IPv4 peer seen through
// a dual-stack socket compares equal to its configured IPv4 endpoint.
type UdpTransport struct {
	udp *net.UDPConn
}

var _ application.DatagramTransport = (*UdpTransport)(nil)

func NewUdpTransport(listenAddr string) (*UdpTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve udp addr: %s", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port: %s", err)
	}

	return &UdpTransport{udp: conn}, nil
}

func (u *UdpTransport) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	n, addr, err := u.udp.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), nil
}

func (u *UdpTransport) WriteTo(data []byte, addr netip.AddrPort) error {
	_, err := u.udp.WriteToUDPAddrPort(data, addr)
	return err
}

func (u *UdpTransport) Close() error {
	return u.udp.Close()
}

// LocalAddrPort reports the bound address, useful when listening on :0.
func (u *UdpTransport) LocalAddrPort() netip.AddrPort {
	return u.udp.LocalAddr().(*net.UDPAddr).AddrPort()
}
