//go:build !linux && !darwin

package zdtun

import "fmt"

// realDialer placeholder for platforms without a raw-syscall BSD socket
// API wired up (e.g. windows). The engine's tun/socket model targets
// POSIX-like platforms; a Windows-native build would need WinSock2
// non-blocking connect glue this module does not implement.
type realDialer struct{}

func newPlatformDialer() dialer { return realDialer{} }

var errUnsupportedPlatform = fmt.Errorf("zdtun: raw socket forwarding not supported on this platform")

func (realDialer) DialTCPNonblocking([4]byte, uint16) (int, bool, error) {
	return sentinelSocket, false, errUnsupportedPlatform
}
func (realDialer) SetBlocking(int, bool) error { return errUnsupportedPlatform }
func (realDialer) SOError(int) error           { return errUnsupportedPlatform }
func (realDialer) Read(int, []byte) (int, error) {
	return 0, errUnsupportedPlatform
}
func (realDialer) Write(int, []byte) (int, error) {
	return 0, errUnsupportedPlatform
}
func (realDialer) DialUDP() (int, error) { return sentinelSocket, errUnsupportedPlatform }
func (realDialer) SendToUDP(int, []byte, [4]byte, uint16) (int, error) {
	return 0, errUnsupportedPlatform
}
func (realDialer) RecvFromUDP(int, []byte) (int, [4]byte, uint16, error) {
	return 0, [4]byte{}, 0, errUnsupportedPlatform
}
func (realDialer) Close(int) error { return nil }

type realRawICMPSocket struct{}

func newRawICMPSocket() (rawICMPSocket, error) {
	return nil, errUnsupportedPlatform
}

func (realRawICMPSocket) SendTo([4]byte, []byte) error { return errUnsupportedPlatform }
func (realRawICMPSocket) Recv([]byte) (int, [4]byte, error) {
	return 0, [4]byte{}, errUnsupportedPlatform
}
func (realRawICMPSocket) Fd() int     { return sentinelSocket }
func (realRawICMPSocket) Close() error { return nil }
