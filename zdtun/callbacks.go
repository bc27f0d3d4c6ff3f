package zdtun

// Direction tags a packet for AccountPacket: DirToEngine is client → engine
// (inbound from the tun device), DirFromEngine is engine → client.
type Direction uint8

const (
	DirFromEngine Direction = 0
	DirToEngine   Direction = 1
)

// Callbacks is the set of host hooks the engine invokes. Every field is
// optional except SendClient; a nil optional hook is simply skipped.
type Callbacks struct {
	// SendClient emits a synthesized packet toward the tun device. A
	// non-nil error triggers the connection to be closed.
	SendClient func(e *Engine, buf []byte, conn *Conn) error

	OnSocketOpen  func(e *Engine, fd int)
	OnSocketClose func(e *Engine, fd int)

	// OnConnectionOpen may refuse creation by returning false.
	OnConnectionOpen func(e *Engine, conn *Conn) bool

	OnConnectionClose func(e *Engine, conn *Conn)

	AccountPacket func(e *Engine, buf []byte, dir Direction, conn *Conn)
}

func (c *Callbacks) socketOpen(e *Engine, fd int) {
	if c.OnSocketOpen != nil {
		c.OnSocketOpen(e, fd)
	}
}

func (c *Callbacks) socketClose(e *Engine, fd int) {
	if c.OnSocketClose != nil {
		c.OnSocketClose(e, fd)
	}
}

func (c *Callbacks) connectionOpen(e *Engine, conn *Conn) bool {
	if c.OnConnectionOpen == nil {
		return true
	}
	return c.OnConnectionOpen(e, conn)
}

func (c *Callbacks) connectionClose(e *Engine, conn *Conn) {
	if c.OnConnectionClose != nil {
		c.OnConnectionClose(e, conn)
	}
}

func (c *Callbacks) account(e *Engine, buf []byte, dir Direction, conn *Conn) {
	if c.AccountPacket != nil {
		c.AccountPacket(e, buf, dir, conn)
	}
}

// send delivers buf to the client via SendClient, accounting it first, and
// closes conn if the send callback reports an error.
func (e *Engine) send(buf []byte, conn *Conn) error {
	e.cb.account(e, buf, DirFromEngine, conn)
	if e.cb.SendClient == nil {
		return nil
	}
	if err := e.cb.SendClient(e, buf, conn); err != nil {
		e.closeConn(conn)
		return err
	}
	return nil
}
