package zdtun

import (
	"errors"
	"testing"
)

// fakeTCPSocket is one in-memory TCP "socket": a queue of reads the fake
// server delivers and a log of writes the engine sent it.
type fakeTCPSocket struct {
	inProgress bool
	soErr      error
	writes     [][]byte
	reads      [][]byte // each entry is one Read() result; nil entry means EOF (n=0, err=nil)
	readErr    error    // if set, returned once reads is drained
	closed     bool
}

// fakeDialer is a mock socket layer satisfying the dialer interface:
// every TCP/UDP socket it hands out is backed by an in-memory
// fakeTCPSocket/fakeUDPSocket instead of a real fd, so tests can script
// connect outcomes and server replies precisely.
type fakeDialer struct {
	nextFd int
	tcp    map[int]*fakeTCPSocket
	udp    map[int]*fakeUDPSocket

	// dialErr, if set, makes the next DialTCPNonblocking call fail outright.
	dialErr error
	// dialInProgress makes the next DialTCPNonblocking report EINPROGRESS
	// instead of completing synchronously.
	dialInProgress bool
}

type fakeUDPSocket struct {
	sent  []fakeSend
	reads []fakeRecv
	err   error
}

type fakeSend struct {
	buf  []byte
	dst  [4]byte
	port uint16
}

type fakeRecv struct {
	buf  []byte
	src  [4]byte
	port uint16
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{tcp: make(map[int]*fakeTCPSocket), udp: make(map[int]*fakeUDPSocket)}
}

func (d *fakeDialer) DialTCPNonblocking(dst [4]byte, port uint16) (int, bool, error) {
	if d.dialErr != nil {
		err := d.dialErr
		d.dialErr = nil
		return sentinelSocket, false, err
	}
	d.nextFd++
	fd := d.nextFd
	sock := &fakeTCPSocket{inProgress: d.dialInProgress}
	d.dialInProgress = false
	d.tcp[fd] = sock
	return fd, sock.inProgress, nil
}

func (d *fakeDialer) SetBlocking(fd int, blocking bool) error { return nil }

func (d *fakeDialer) SOError(fd int) error {
	s, ok := d.tcp[fd]
	if !ok {
		return errors.New("fakeDialer: unknown fd")
	}
	return s.soErr
}

func (d *fakeDialer) Read(fd int, buf []byte) (int, error) {
	s, ok := d.tcp[fd]
	if !ok {
		return 0, errors.New("fakeDialer: unknown fd")
	}
	if len(s.reads) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, nil // EOF
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	if next == nil {
		return 0, nil // explicit EOF marker
	}
	n := copy(buf, next)
	return n, nil
}

func (d *fakeDialer) Write(fd int, buf []byte) (int, error) {
	s, ok := d.tcp[fd]
	if !ok {
		return 0, errors.New("fakeDialer: unknown fd")
	}
	cp := append([]byte(nil), buf...)
	s.writes = append(s.writes, cp)
	return len(buf), nil
}

func (d *fakeDialer) DialUDP() (int, error) {
	d.nextFd++
	fd := d.nextFd
	d.udp[fd] = &fakeUDPSocket{}
	return fd, nil
}

func (d *fakeDialer) SendToUDP(fd int, buf []byte, dst [4]byte, port uint16) (int, error) {
	s, ok := d.udp[fd]
	if !ok {
		return 0, errors.New("fakeDialer: unknown udp fd")
	}
	cp := append([]byte(nil), buf...)
	s.sent = append(s.sent, fakeSend{buf: cp, dst: dst, port: port})
	return len(buf), nil
}

func (d *fakeDialer) RecvFromUDP(fd int, buf []byte) (int, [4]byte, uint16, error) {
	s, ok := d.udp[fd]
	if !ok {
		return 0, [4]byte{}, 0, errors.New("fakeDialer: unknown udp fd")
	}
	if s.err != nil {
		return 0, [4]byte{}, 0, s.err
	}
	if len(s.reads) == 0 {
		return 0, [4]byte{}, 0, errors.New("fakeDialer: no queued udp reply")
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	n := copy(buf, next.buf)
	return n, next.src, next.port, nil
}

func (d *fakeDialer) Close(fd int) error {
	if s, ok := d.tcp[fd]; ok {
		s.closed = true
		return nil
	}
	if _, ok := d.udp[fd]; ok {
		delete(d.udp, fd)
		return nil
	}
	return nil
}

// fakeRawICMP is a mock single shared raw ICMP socket.
type fakeRawICMP struct {
	sent  []fakeSend
	reads []fakeRecv
	fd    int
}

func (f *fakeRawICMP) SendTo(dst [4]byte, buf []byte) error {
	cp := append([]byte(nil), buf...)
	f.sent = append(f.sent, fakeSend{buf: cp, dst: dst})
	return nil
}

func (f *fakeRawICMP) Recv(buf []byte) (int, [4]byte, error) {
	if len(f.reads) == 0 {
		return 0, [4]byte{}, errors.New("fakeRawICMP: no queued reply")
	}
	next := f.reads[0]
	f.reads = f.reads[1:]
	n := copy(buf, next.buf)
	return n, next.src, nil
}

func (f *fakeRawICMP) Fd() int     { return f.fd }
func (f *fakeRawICMP) Close() error { return nil }

// testEngine builds an Engine wired to fresh fakes, ready for scenario
// tests. recorder captures every packet sent to the client in order.
func testEngine(t *testing.T) (*Engine, *fakeDialer, *fakeRawICMP, *[][]byte) {
	t.Helper()
	fd := newFakeDialer()
	icmp := &fakeRawICMP{fd: 1000}
	sent := &[][]byte{}
	cb := Callbacks{
		SendClient: func(e *Engine, buf []byte, conn *Conn) error {
			cp := append([]byte(nil), buf...)
			*sent = append(*sent, cp)
			return nil
		},
	}
	e, err := NewEngine(cb, EngineOptions{FixedISN: true, dialer: fd, icmp: icmp})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, fd, icmp, sent
}
