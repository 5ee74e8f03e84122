// Package printertest provides an in-process printer speaking the control
// protocol, for use in tests.
package printertest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/protocol"
)

type reading struct {
	current, target float64
}

// Server is a fake printer listening on a loopback port
type Server struct {
	ln net.Listener
	wg sync.WaitGroup

	mu            sync.Mutex
	conns         map[net.Conn]struct{}
	connections   int
	requests      []protocol.Request
	malformed     int
	silent        bool
	failNext      map[protocol.Code]string
	replaceNext   map[protocol.Code]string
	machineStatus string
	moveMode      string
	currentFile   string
	bytesDone     int64
	bytesTotal    int64
	layerDone     int
	layerTotal    int
	temps         map[string]reading
	led           [3]int
}

// New starts a fake printer reporting READY. Callers must Close it.
func New() *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("printertest: failed to listen: %v", err))
	}
	s := &Server{
		ln:            ln,
		conns:         make(map[net.Conn]struct{}),
		failNext:      make(map[protocol.Code]string),
		replaceNext:   make(map[protocol.Code]string),
		machineStatus: "READY",
		moveMode:      "READY",
		temps: map[string]reading{
			"T0": {current: 24},
			"T1": {current: 24},
			"B":  {current: 22},
		},
	}
	s.wg.Add(1)
	go s.serve()
	return s
}

// Addr returns the host:port the server listens on
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Identity returns a printer identity pointing at the server, without a camera
func (s *Server) Identity(name string) models.PrinterIdentity {
	addr := s.ln.Addr().(*net.TCPAddr)
	return models.PrinterIdentity{
		Name:        name,
		Host:        addr.IP.String(),
		ControlPort: addr.Port,
	}
}

// SetStatus changes the reported MachineStatus and MoveMode
func (s *Server) SetStatus(machineStatus, moveMode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machineStatus = machineStatus
	s.moveMode = moveMode
}

// SetFile changes the reported CurrentFile
func (s *Server) SetFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentFile = name
}

// SetProgress changes the reported byte and layer counters
func (s *Server) SetProgress(bytesDone, bytesTotal int64, layerDone, layerTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesDone, s.bytesTotal = bytesDone, bytesTotal
	s.layerDone, s.layerTotal = layerDone, layerTotal
}

// SetSilent makes the server read requests without ever answering
func (s *Server) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// FailNext answers the next request with code using the failure marker
func (s *Server) FailNext(code protocol.Code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[code] = message
}

// ReplaceNext answers the next request with code using body instead of the
// usual payload. The reply is still terminated with ok.
func (s *Server) ReplaceNext(code protocol.Code, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceNext[code] = body
}

// Requests returns every well-formed request received so far
func (s *Server) Requests() []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Malformed returns how many request lines failed to decode
func (s *Server) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// Connections returns how many connections have been accepted
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// LED returns the last colour set through M146
func (s *Server) LED() (r, g, b int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led[0], s.led[1], s.led[2]
}

// DropConnections closes every open client socket
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Close stops the listener and waits for all handlers to exit
func (s *Server) Close() {
	_ = s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.connections++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest([]byte(line))

		s.mu.Lock()
		if err != nil {
			s.malformed++
			s.mu.Unlock()
			continue
		}
		s.requests = append(s.requests, req)
		if s.silent {
			s.mu.Unlock()
			continue
		}
		reply := s.reply(req)
		s.mu.Unlock()

		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// reply builds the response for req. Caller holds s.mu.
func (s *Server) reply(req protocol.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CMD %s Received.\r\n", req.Code)

	if msg, ok := s.failNext[req.Code]; ok {
		delete(s.failNext, req.Code)
		fmt.Fprintf(&b, "Error: %s\r\n", msg)
		return b.String()
	}
	if body, ok := s.replaceNext[req.Code]; ok {
		delete(s.replaceNext, req.Code)
		fmt.Fprintf(&b, "%s\r\nok\r\n", body)
		return b.String()
	}

	switch req.Code {
	case protocol.CodeControl:
		b.WriteString("Control Success.\r\n")
	case protocol.CodeRelease:
		b.WriteString("Control Release.\r\n")
	case protocol.CodeInfo:
		b.WriteString("Machine Type: Flashforge Adventurer III\r\n")
		b.WriteString("Machine Name: Test Printer\r\n")
		b.WriteString("Firmware: v1.3.7\r\n")
		b.WriteString("SN: SNTEST0001\r\n")
		b.WriteString("X: 150 Y: 150 Z: 150\r\n")
		b.WriteString("Tool Count: 1\r\n")
		b.WriteString("Mac Address:88:A9:A7:00:00:01\r\n")
	case protocol.CodeStatus:
		b.WriteString("Endstop: X-max:0 Y-max:0 Z-min:0\r\n")
		fmt.Fprintf(&b, "MachineStatus: %s\r\n", s.machineStatus)
		fmt.Fprintf(&b, "MoveMode: %s\r\n", s.moveMode)
		b.WriteString("Status: S:1 L:0 J:0 F:0\r\n")
		led := 0
		if s.led != [3]int{} {
			led = 1
		}
		fmt.Fprintf(&b, "LED: %d\r\n", led)
		fmt.Fprintf(&b, "CurrentFile: %s\r\n", s.currentFile)
	case protocol.CodeTemperature:
		fmt.Fprintf(&b, "T0:%s/%s T1:%s/%s B:%s/%s\r\n",
			num(s.temps["T0"].current), num(s.temps["T0"].target),
			num(s.temps["T1"].current), num(s.temps["T1"].target),
			num(s.temps["B"].current), num(s.temps["B"].target))
	case protocol.CodeHeadPosition:
		b.WriteString("X:0 Y:0 Z:0 A:0 B:0\r\n")
	case protocol.CodeProgress:
		fmt.Fprintf(&b, "SD printing byte %d/%d\r\n", s.bytesDone, s.bytesTotal)
		fmt.Fprintf(&b, "Layer: %d/%d\r\n", s.layerDone, s.layerTotal)
	case protocol.CodeSetTemperature:
		index, celsius, err := req.TemperatureArgs()
		if err != nil {
			fmt.Fprintf(&b, "Error: %v\r\n", err)
			return b.String()
		}
		key := "T" + strconv.Itoa(index)
		r := s.temps[key]
		r.target = celsius
		s.temps[key] = r
	case protocol.CodeLED:
		for i, key := range []byte{'r', 'g', 'b'} {
			raw, _ := req.Param(key)
			s.led[i], _ = strconv.Atoi(raw)
		}
	default:
		b.WriteString("Error: unsupported command\r\n")
		return b.String()
	}

	b.WriteString("ok\r\n")
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
