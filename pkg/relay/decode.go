package relay

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

// DecodeStage owns every client's read half. Each registered client gets a
// reader goroutine that decodes one line at a time and re-arms only after
// its previous result has been handed off, so a client's stream is never
// reordered or read twice. Results from all clients funnel through one
// bounded channel, which is the stage's backpressure point.
type DecodeStage struct {
	log *zap.SugaredLogger

	// clients is touched only by the Run loop.
	clients map[wire.ClientID]struct{}

	results chan DecodeEvent
	done    chan struct{}
}

func NewDecodeStage(log *zap.SugaredLogger, capacity int) *DecodeStage {
	return &DecodeStage{
		log:     log,
		clients: make(map[wire.ClientID]struct{}),
		results: make(chan DecodeEvent, capacity),
		done:    make(chan struct{}),
	}
}

// Run consumes registrations from control and forwards decode results on
// events. It returns nil when control is closed (the acceptor has stopped)
// and ctx.Err() if cancelled while blocked on a forward.
func (d *DecodeStage) Run(ctx context.Context, control <-chan AddReader, events chan<- DecodeEvent) error {
	defer close(d.done)
	d.log.Info("decoder started")
	for {
		// Registrations are checked with priority ahead of decode
		// progress so a burst of order traffic cannot starve new
		// connections.
		select {
		case msg, ok := <-control:
			if !ok {
				d.log.Info("decoder: control channel closed")
				return nil
			}
			d.addClient(msg)
			continue
		default:
		}

		select {
		case msg, ok := <-control:
			if !ok {
				d.log.Info("decoder: control channel closed")
				return nil
			}
			d.addClient(msg)
		case res := <-d.results:
			select {
			case events <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
			if res.Disconnected {
				// Deregister only after the acceptor has been
				// notified.
				delete(d.clients, res.Client)
			}
		}
	}
}

func (d *DecodeStage) addClient(msg AddReader) {
	if _, dup := d.clients[msg.ID]; dup {
		d.log.Warnw("duplicate_client_registration", "client", msg.ID)
		return
	}
	d.clients[msg.ID] = struct{}{}
	d.log.Infow("reader_registered", "client", msg.ID)
	go d.readLoop(msg.ID, msg.R)
}

// readLoop decodes one client's line stream. Malformed lines are logged
// and skipped, however long they are; only EOF and transport errors end
// the stream, and both end as a single Disconnected result. The read
// buffer grows with the longest line a client sends, so an oversized
// line costs memory, never the connection.
func (d *DecodeStage) readLoop(id wire.ClientID, r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err == nil || (err == io.EOF && line != "") {
			text := strings.TrimSuffix(line, "\n")
			text = strings.TrimSuffix(text, "\r")
			order, perr := wire.ParseOrder(text)
			if perr != nil {
				d.log.Warnw("invalid_request", "client", id, "err", perr)
			} else {
				select {
				case d.results <- DecodeEvent{Client: id, Order: order}:
				case <-d.done:
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				d.log.Warnw("client_read_failed", "client", id, "err", err)
			}
			break
		}
	}
	select {
	case d.results <- DecodeEvent{Client: id, Disconnected: true}:
	case <-d.done:
	}
}
