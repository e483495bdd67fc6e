package monitorsrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zboralski/vicemon/internal/config"
	"github.com/zboralski/vicemon/internal/emulator"
	"github.com/zboralski/vicemon/internal/log"
	"github.com/zboralski/vicemon/internal/wire"
)

// Server is the binary remote monitor protocol server bound to one
// emulator.Machine. Per spec.md's non-goals there is no multi-client
// fan-out: a second client attempting to connect while one is attached
// simply waits at the listener's next Accept until the first disconnects.
type Server struct {
	addr    *config.Address
	machine *emulator.Machine
	logger  *log.Logger

	// programRoot resolves AUTOSTART filenames (see autostartPath);
	// empty means filenames are used as direct filesystem paths, since
	// this server has no disk-image directory collaborator of its own.
	programRoot string

	listener net.Listener

	// Per-connection state, valid only while a client is attached.
	conn               net.Conn
	sessionID          string
	closeAfterResponse bool
}

// New builds a Server bound to machine, listening at addr once Serve is
// called.
func New(addr *config.Address, machine *emulator.Machine, logger *log.Logger, programRoot string) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	machine.Tracer = logger.Trace
	return &Server{addr: addr, machine: machine, logger: logger, programRoot: programRoot}
}

// Serve opens the listener and accepts connections until ctx is
// canceled, handling each connection to completion before the next
// Accept.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen(s.addr.Network(), s.addr.DialString())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		defer ln.Close()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			s.handleConnection(ctx, conn)
		}
	})

	return g.Wait()
}

// Addr reports the address the server was constructed with.
func (s *Server) Addr() *config.Address {
	return s.addr
}

// handleConnection services one client end to end: connect, the
// Connected -> MonitorResident command loop, then disconnect. Entering
// the command loop immediately traps the machine into the monitor (this
// server never runs the emulated CPU concurrently with a command
// session; the CPU runs only inside the handlers that step or start it).
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	s.conn = conn
	s.sessionID = uuid.NewString()
	s.closeAfterResponse = false
	defer func() {
		conn.Close()
		s.conn = nil
	}()

	s.logger.Session("connected", s.sessionID)
	s.onEnterMonitor()

	reader := wire.NewFrameReader(conn)
	for {
		select {
		case <-ctx.Done():
			s.onLeaveMonitor()
			s.logger.Session("disconnected", s.sessionID)
			return
		default:
		}

		// reader.ReadCommand() already discards any frame whose
		// api_version doesn't match and resumes resync internally, so a
		// Command returned here always has a valid, supported version.
		cmd, err := reader.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Session("read-error", s.sessionID)
			}
			break
		}

		s.logger.Frame(cmd.RequestID, uint8(cmd.Type))
		result := dispatch(s, cmd)
		if err := wire.Respond(conn, cmd.RequestID, result.responseType, result.errorCode, result.body); err != nil {
			break
		}

		if s.closeAfterResponse {
			break
		}
	}

	s.onLeaveMonitor()
	s.logger.Session("disconnected", s.sessionID)
}
