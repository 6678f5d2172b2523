package testutils

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/pior/memd/mcbp"
)

// Handler answers one request with zero or more response packets. A zero
// Magic in a packet defaults to MagicResponse; a zero Opaque and Opcode are
// filled from the request.
type Handler func(req *Request) []*mcbp.Packet

// Server is a scripted KV node listening on loopback.
type Server struct {
	ln      net.Listener
	handler Handler

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB, handler Handler) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// DropConnections closes every accepted connection.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *Server) Close() {
	s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		req, err := ReadRequest(r)
		if err != nil {
			return
		}

		var buf []byte
		for _, p := range s.handler(req) {
			if p.Magic == 0 {
				p.Magic = mcbp.MagicResponse
			}
			if p.Opaque == 0 {
				p.Opaque = req.Opaque
			}
			if p.Opcode == 0 {
				p.Opcode = req.Opcode
			}
			buf = mcbp.AppendPacket(buf, p)
		}
		if _, err := conn.Write(buf); err != nil {
			return
		}
	}
}
