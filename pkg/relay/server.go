package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

// TradeRecorder persists executed trades. Record is called from the
// acceptor loop only; a recording failure is logged, never fatal.
type TradeRecorder interface {
	Record(product wire.Product) error
}

// Server is the acceptor/coordinator: it owns the listening socket and the
// matcher, bridges decode-stage events to encode-stage control, and is the
// only loop that observes cancellation directly. The other stages stop via
// chained shutdown when the server closes their control channels.
type Server struct {
	log     *zap.SugaredLogger
	ln      net.Listener
	matcher *Matcher
	stats   *Stats

	capacity int
	nextID   uint64

	// Tape, when set, records every executed trade.
	Tape TradeRecorder
	// OnTrade, when set, is invoked after each executed trade. It runs
	// on the acceptor loop and must not block.
	OnTrade func(wire.Trade)
}

// Bind opens the client-facing listener. Run serves it until cancelled.
func Bind(log *zap.SugaredLogger, addr string, channelCapacity int) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	log.Infow("server_listening", "addr", ln.Addr().String())
	return &Server{
		log:      log,
		ln:       ln,
		matcher:  NewMatcher(),
		stats:    NewStats(),
		capacity: channelCapacity,
	}, nil
}

// Addr reports the bound listen address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Stats exposes the relay's counters for the observability API.
func (s *Server) Stats() *Stats { return s.stats }

// Run starts the decode and encode stages and coordinates them until ctx
// is cancelled or a stage fails. Cancellation is observed with priority
// over new work. On return the listener is closed and both control
// channels are closed, which ends the stages; the encode stage closes all
// client sockets on its way out.
func (s *Server) Run(ctx context.Context) error {
	decodeCtrl := make(chan AddReader, s.capacity)
	encodeCtrl := make(chan EncodeControl, s.capacity)
	events := make(chan DecodeEvent, s.capacity)

	decoder := NewDecodeStage(s.log, s.capacity)
	encoder := NewEncodeStage(s.log)

	stageErrs := make(chan error, 2)
	var stages sync.WaitGroup
	stages.Add(2)
	go func() {
		defer stages.Done()
		stageErrs <- decoder.Run(ctx, decodeCtrl, events)
	}()
	go func() {
		defer stages.Done()
		stageErrs <- encoder.Run(ctx, encodeCtrl)
	}()

	// Accept on a helper goroutine so the loop below can race new
	// connections against decode events and cancellation.
	conns := make(chan net.Conn)
	var accepting sync.WaitGroup
	accepting.Add(1)
	go func() {
		defer accepting.Done()
		s.acceptLoop(ctx, conns)
	}()

	err := s.loop(ctx, conns, decodeCtrl, encodeCtrl, events)

	_ = s.ln.Close()
	accepting.Wait()
	close(decodeCtrl)
	close(encodeCtrl)
	stages.Wait()
	close(stageErrs)
	for serr := range stageErrs {
		if err == nil && serr != nil && !errors.Is(serr, context.Canceled) {
			err = serr
		}
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, conns chan<- net.Conn) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// A single failed accept is not fatal to the acceptor,
			// but back off so a persistent fault (fd exhaustion)
			// does not spin the loop hot.
			s.log.Errorw("accept_failed", "err", err)
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case conns <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) loop(ctx context.Context, conns <-chan net.Conn, decodeCtrl chan<- AddReader, encodeCtrl chan<- EncodeControl, events <-chan DecodeEvent) error {
	for {
		// Cancellation wins over pending work.
		select {
		case <-ctx.Done():
			s.log.Info("server cancelled")
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			s.log.Info("server cancelled")
			return nil
		case ev := <-events:
			if err := s.handleDecodeEvent(ctx, ev, encodeCtrl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case conn := <-conns:
			if err := s.handleNewClient(ctx, conn, decodeCtrl, encodeCtrl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// A single registration failure is not fatal.
				s.log.Errorw("client_registration_failed", "err", err)
			}
		}
	}
}

// handleNewClient splits an accepted connection between the two stages:
// the decode stage gets the read half, the encode stage the write half.
// ClientIds come from a monotonic counter, never from the ephemeral port,
// so a later connection can never collide with an earlier one.
func (s *Server) handleNewClient(ctx context.Context, conn net.Conn, decodeCtrl chan<- AddReader, encodeCtrl chan<- EncodeControl) error {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			s.log.Warnw("nodelay_failed", "remote", conn.RemoteAddr().String(), "err", err)
		}
	}

	s.nextID++
	id := wire.ClientID(s.nextID)
	s.log.Infow("client_connected", "client", id, "remote", conn.RemoteAddr().String())

	select {
	case decodeCtrl <- AddReader{ID: id, R: conn}:
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
	select {
	case encodeCtrl <- AddWriter{ID: id, W: conn}:
	case <-ctx.Done():
		// The conn reached the decoder but not the encoder, so the
		// encode stage's close-all will never cover it.
		_ = conn.Close()
		return ctx.Err()
	}

	s.stats.clientConnected()
	return nil
}

// handleDecodeEvent applies the relay's per-order flow: ack first,
// unconditionally, then match, then broadcast the trade if one resulted.
// Losing the encode control path is fatal, the relay cannot serve without
// an output side.
func (s *Server) handleDecodeEvent(ctx context.Context, ev DecodeEvent, encodeCtrl chan<- EncodeControl) error {
	if ev.Disconnected {
		s.log.Infow("client_disconnected", "client", ev.Client)
		s.stats.clientDisconnected()
		return s.sendControl(ctx, encodeCtrl, RemoveWriter{ID: ev.Client})
	}

	order := ev.Order
	if err := s.sendControl(ctx, encodeCtrl, SendAck{ID: ev.Client, Ack: wire.OrderAck{Product: order.Product}}); err != nil {
		return err
	}

	trade, matched := s.matcher.Apply(order.Side, order.Product)
	buys, sells := s.matcher.Counts(order.Product)
	s.stats.orderProcessed(order.Product, buys, sells, matched)
	if !matched {
		return nil
	}

	s.log.Infow("trade_executed", "product", trade.Product.String(), "taker", ev.Client)
	if s.Tape != nil {
		if err := s.Tape.Record(trade.Product); err != nil {
			s.log.Errorw("trade_record_failed", "err", err)
		}
	}
	if s.OnTrade != nil {
		s.OnTrade(trade)
	}
	return s.sendControl(ctx, encodeCtrl, Broadcast{Trade: trade})
}

func (s *Server) sendControl(ctx context.Context, encodeCtrl chan<- EncodeControl, msg EncodeControl) error {
	select {
	case encodeCtrl <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
