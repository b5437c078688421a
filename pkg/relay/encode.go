package relay

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

// EncodeStage owns every client's write half. It serializes outbound
// messages into a single scratch buffer and writes each message with one
// exact-length write. Per-client write failures drop only that client;
// the stage itself stops only when its control channel closes.
type EncodeStage struct {
	log *zap.SugaredLogger

	// clients is touched only by the Run loop.
	clients map[wire.ClientID]io.WriteCloser

	buf []byte
}

func NewEncodeStage(log *zap.SugaredLogger) *EncodeStage {
	return &EncodeStage{
		log:     log,
		clients: make(map[wire.ClientID]io.WriteCloser),
		buf:     make([]byte, 0, 64),
	}
}

// Run processes control messages in arrival order until control is closed
// or ctx is cancelled. On the way out it closes every registered sink,
// best-effort and concurrently.
func (e *EncodeStage) Run(ctx context.Context, control <-chan EncodeControl) error {
	defer e.closeAll()
	e.log.Info("encoder started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-control:
			if !ok {
				e.log.Info("encoder: control channel closed")
				return nil
			}
			e.handle(msg)
		}
	}
}

func (e *EncodeStage) handle(msg EncodeControl) {
	switch m := msg.(type) {
	case AddWriter:
		e.addClient(m.ID, m.W)
	case RemoveWriter:
		if w, ok := e.clients[m.ID]; ok {
			delete(e.clients, m.ID)
			// Close failures are ignored, the peer is already gone.
			_ = w.Close()
		}
	case SendAck:
		w, ok := e.clients[m.ID]
		if !ok {
			// Lost the race with a disconnect. Single-operation
			// failure; the loop keeps serving everyone else.
			e.log.Warnw("ack_unknown_client", "client", m.ID)
			return
		}
		if err := e.send(m.Ack, w); err != nil {
			e.log.Warnw("ack_write_failed", "client", m.ID, "err", err)
			e.drop(m.ID)
		}
	case Broadcast:
		// Every registered client gets the trade, the originator
		// included. A failed write drops that client and delivery
		// continues to the rest.
		for id, w := range e.clients {
			if err := e.send(m.Trade, w); err != nil {
				e.log.Warnw("trade_write_failed", "client", id, "err", err)
				e.drop(id)
			}
		}
	}
}

// addClient greets the new client with LOGIN before registering its sink.
// A failed greeting drops the client without registering it; the stage
// keeps running.
func (e *EncodeStage) addClient(id wire.ClientID, w io.WriteCloser) {
	if err := e.send(wire.Login{ClientID: id}, w); err != nil {
		e.log.Errorw("login_failed", "client", id, "err", err)
		_ = w.Close()
		return
	}
	e.clients[id] = w
	e.log.Infow("writer_registered", "client", id)
}

func (e *EncodeStage) drop(id wire.ClientID) {
	if w, ok := e.clients[id]; ok {
		delete(e.clients, id)
		_ = w.Close()
	}
}

// send writes one encoded message with a single write. A short write is a
// transport error.
func (e *EncodeStage) send(msg wire.Message, w io.Writer) error {
	e.buf = msg.Append(e.buf[:0])
	n, err := w.Write(e.buf)
	if err != nil {
		return err
	}
	if n != len(e.buf) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(e.buf))
	}
	return nil
}

func (e *EncodeStage) closeAll() {
	e.log.Infow("encoder_shutdown", "clients", len(e.clients))
	var wg sync.WaitGroup
	for _, w := range e.clients {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			// We do not care if it fails, we are shutting down anyway.
			_ = w.Close()
		}()
	}
	wg.Wait()
	clear(e.clients)
}
