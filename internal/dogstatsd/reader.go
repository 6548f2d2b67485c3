package dogstatsd

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// RecvBufferSize is the fixed receive buffer of the UDP reader. Datagrams
// larger than this are truncated by the kernel; the ingestion loop logs a
// warning when a read fills the whole buffer.
const RecvBufferSize = 8192

// BufferReader yields raw datagram payloads plus their origin.
//
// Read blocks until a datagram arrives or the transport fails. The context
// is advisory: a blocked read is not interruptible, cancellation is
// observed by the ingestion loop between datagrams, and shutdown unblocks
// a pending read by closing the underlying transport.
type BufferReader interface {
	Read(ctx context.Context) ([]byte, net.Addr, error)
}

// UDPReader reads datagrams from a bound UDP socket.
type UDPReader struct {
	conn *net.UDPConn
}

// NewUDPReader binds a UDP socket on host:port. A bind failure is fatal at
// startup and returned to the caller.
func NewUDPReader(host string, port int) (*UDPReader, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolving %s:%d: %w", host, port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s:%d: %w", host, port, err)
	}
	return &UDPReader{conn: conn}, nil
}

// Read waits for the next datagram and returns its payload and origin.
func (r *UDPReader) Read(ctx context.Context) ([]byte, net.Addr, error) {
	buf := make([]byte, RecvBufferSize)
	n, src, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], src, nil
}

// LocalAddr reports the bound address, useful when binding port 0.
func (r *UDPReader) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Close closes the socket, unblocking a pending Read.
func (r *UDPReader) Close() error {
	return r.conn.Close()
}

// MirrorReader is a test double that replays a fixed payload with a fixed
// synthetic origin on every Read, exercising the parse and aggregate path
// without a real socket.
type MirrorReader struct {
	payload []byte
	origin  net.Addr
}

func NewMirrorReader(payload []byte, origin net.Addr) *MirrorReader {
	return &MirrorReader{payload: payload, origin: origin}
}

// Read returns a copy of the configured payload.
func (r *MirrorReader) Read(ctx context.Context) ([]byte, net.Addr, error) {
	payload := make([]byte, len(r.payload))
	copy(payload, r.payload)
	return payload, r.origin, nil
}
