package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single WebSocket client connection. ID doubles as
// the core.User id for the lifetime of the connection (§4.7 "the adapter
// owns no state beyond the mapping from transport connection id to User
// id — typically identical").
type Connection struct {
	ID         string
	RemoteIP   string
	Conn       net.Conn
	Fd         int
	CreatedAt  time.Time
	writeMu    sync.Mutex
	processing int32 // atomic flag: 0 = idle, 1 = being read by handleConn

	pingMu   sync.Mutex
	lastPing time.Time
}

// touch records that the connection just proved liveness (a frame was read,
// or a pong answered).
func (c *Connection) touch() {
	c.pingMu.Lock()
	c.lastPing = time.Now()
	c.pingMu.Unlock()
}

// idleSince returns how long it has been since the connection last proved
// liveness.
func (c *Connection) idleSince() time.Duration {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return time.Since(c.lastPing)
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

func (c *Connection) tryAcquire() bool {
	return atomic.CompareAndSwapInt32(&c.processing, 0, 1)
}

func (c *Connection) release() {
	atomic.StoreInt32(&c.processing, 0)
}

// ConnectionManager is a thread-safe registry mapping connection ids and fds
// to Connection objects, and tracking per-IP connection counts for the
// admission-control cap (§4.6a).
type ConnectionManager struct {
	mu       sync.RWMutex
	byID     map[string]*Connection
	byFd     map[int]*Connection
	byIP     map[string]int
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
		byIP: make(map[string]int),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.byIP[conn.RemoteIP]++
	cm.mu.Unlock()
}

// CountForIP returns the number of active connections from remoteIP.
func (cm *ConnectionManager) CountForIP(remoteIP string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byIP[remoteIP]
}

// Remove removes a connection by id, closes the underlying socket, and
// returns true if it was present.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
		cm.byIP[conn.RemoteIP]--
		if cm.byIP[conn.RemoteIP] <= 0 {
			delete(cm.byIP, conn.RemoteIP)
		}
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for id, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byID[id]
}

// GetByFd returns the connection for fd, or nil.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byFd[fd]
}

// GetByConn returns the connection owning the given net.Conn, or nil.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	return cm.GetByFd(socketFD(c))
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byID)
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, c := range cm.byID {
		conns = append(conns, c)
	}
	return conns
}
