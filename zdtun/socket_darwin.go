//go:build darwin

package zdtun

import "syscall"

// realDialer is the Darwin implementation of dialer. Same syscall shape as
// Linux (BSD socket API); kept as a separate file because macOS
// SOCK_RAW/ICMP setup has platform quirks (no IP_HDRINCL needed, but some
// syscall constants live under different names) worth isolating behind a
// build tag.
type realDialer struct{}

func newPlatformDialer() dialer { return realDialer{} }

func (realDialer) DialTCPNonblocking(dst [4]byte, port uint16) (int, bool, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return sentinelSocket, false, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return sentinelSocket, false, err
	}
	addr := &syscall.SockaddrInet4{Port: int(port), Addr: dst}
	err = syscall.Connect(fd, addr)
	if err == nil {
		return fd, false, nil
	}
	if err == syscall.EINPROGRESS {
		return fd, true, nil
	}
	syscall.Close(fd)
	return sentinelSocket, false, err
}

func (realDialer) SetBlocking(fd int, blocking bool) error {
	return syscall.SetNonblock(fd, !blocking)
}

func (realDialer) SOError(fd int) error {
	errno, err := syscall.GetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return syscall.Errno(errno)
	}
	return nil
}

func (realDialer) Read(fd int, buf []byte) (int, error) {
	return syscall.Read(fd, buf)
}

func (realDialer) Write(fd int, buf []byte) (int, error) {
	return syscall.Write(fd, buf)
}

func (realDialer) DialUDP() (int, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, 0)
	if err != nil {
		return sentinelSocket, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return sentinelSocket, err
	}
	return fd, nil
}

func (realDialer) SendToUDP(fd int, buf []byte, dst [4]byte, port uint16) (int, error) {
	addr := &syscall.SockaddrInet4{Port: int(port), Addr: dst}
	if err := syscall.Sendto(fd, buf, 0, addr); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (realDialer) RecvFromUDP(fd int, buf []byte) (int, [4]byte, uint16, error) {
	n, from, err := syscall.Recvfrom(fd, buf, 0)
	if err != nil {
		return 0, [4]byte{}, 0, err
	}
	var srcIP [4]byte
	var srcPort uint16
	if a, ok := from.(*syscall.SockaddrInet4); ok {
		srcIP = a.Addr
		srcPort = uint16(a.Port)
	}
	return n, srcIP, srcPort, nil
}

func (realDialer) Close(fd int) error {
	return syscall.Close(fd)
}

type realRawICMPSocket struct{ fd int }

func newRawICMPSocket() (rawICMPSocket, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_RAW, syscall.IPPROTO_ICMP)
	if err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &realRawICMPSocket{fd: fd}, nil
}

func (s *realRawICMPSocket) SendTo(dst [4]byte, buf []byte) error {
	addr := &syscall.SockaddrInet4{Addr: dst}
	return syscall.Sendto(s.fd, buf, 0, addr)
}

func (s *realRawICMPSocket) Recv(buf []byte) (int, [4]byte, error) {
	n, from, err := syscall.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, [4]byte{}, err
	}
	var src [4]byte
	if a, ok := from.(*syscall.SockaddrInet4); ok {
		src = a.Addr
	}
	// Raw IPv4 sockets deliver the IP header with the ICMP message.
	if n > 0 {
		ihl := int(buf[0]&0x0f) * 4
		if ihl < 20 || ihl > n {
			return 0, src, syscall.EINVAL
		}
		n = copy(buf, buf[ihl:n])
	}
	return n, src, nil
}

func (s *realRawICMPSocket) Fd() int { return s.fd }

func (s *realRawICMPSocket) Close() error { return syscall.Close(s.fd) }
