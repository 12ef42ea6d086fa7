// Package transport runs the engine's wire front end: a UDP socket
// for gateway requests and another for the outbound indication feed.
// The serve loop is the engine's single goroutine; idle gaps between
// datagrams drive reclamation and snapshotting.
package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"matchd/codec"
	"matchd/service"
	"matchd/snapshot"
)

const maxDatagram = 64 << 10

type UDPServer struct {
	conn *net.UDPConn
	feed *net.UDPConn
	log  zerolog.Logger
}

// NewUDP binds the request socket and, when feedAddr is non-empty,
// connects the indication feed socket. The feed address is typically
// multicast; every live indication is framed and written there.
func NewUDP(addr, feedAddr string, log zerolog.Logger) (*UDPServer, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	s := &UDPServer{
		conn: conn,
		log:  log.With().Str("component", "transport").Logger(),
	}

	if feedAddr != "" {
		faddr, err := net.ResolveUDPAddr("udp", feedAddr)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		feed, err := net.DialUDP("udp", nil, faddr)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		s.feed = feed
	}

	return s, nil
}

// Publish implements service.Sink: one indication, one datagram.
func (s *UDPServer) Publish(ind codec.Indication) {
	if s.feed == nil {
		return
	}
	frame, err := codec.EncodeIndication(ind)
	if err != nil {
		s.log.Error().Err(err).Stringer("msg", ind.Msg).Msg("indication encode failed")
		return
	}
	if _, err := s.feed.Write(frame); err != nil {
		s.log.Warn().Err(err).Stringer("msg", ind.Msg).Msg("feed write failed")
	}
}

// Serve reads datagrams until ctx is cancelled. Each read runs with
// idle as its deadline; a timeout means the wire is quiet, which is
// when the engine does deferred work.
func (s *UDPServer) Serve(
	ctx context.Context,
	e *service.Engine,
	snapW *snapshot.Writer,
	snapInterval time.Duration,
	idle time.Duration,
) error {
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}
	buf := make([]byte, maxDatagram)

	s.log.Info().Stringer("addr", s.conn.LocalAddr()).Msg("listening")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(idle))
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				e.IdleTick()
				if snapW != nil {
					if err := e.MaybeSnapshot(snapW, snapInterval); err != nil {
						s.log.Error().Err(err).Msg("snapshot failed")
					}
				}
				continue
			}
			return err
		}

		req, err := codec.DecodeRequest(buf[:n])
		if err != nil {
			s.log.Debug().Err(err).Int("len", n).Msg("malformed datagram dropped")
			continue
		}
		if err := e.Handle(req); err != nil {
			s.log.Error().Err(err).Stringer("msg", req.Msg).Msg("operation failed")
		}
	}
}

// Addr is the bound request address, useful when listening on :0.
func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *UDPServer) Close() error {
	if s.feed != nil {
		_ = s.feed.Close()
	}
	return s.conn.Close()
}
