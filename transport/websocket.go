package transport

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/toolsforexperiments/instrumentserver/wire"
)

// websocketListener bridges browser/GUI-style clients into the same
// Dispatcher a Server's NATS subscription uses, per spec.md §6's
// -a/--listen_at extra bind address. Grounded on the corpus's
// input/websocket server mode accept loop, trimmed to this spec's needs:
// no bidirectional federation envelope, no backpressure buffer (the
// dispatcher's own worker pool queue is this repo's backpressure point).
type websocketListener struct {
	addr       string
	dispatcher Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	httpServer *http.Server
	wg         sync.WaitGroup
}

func newWebsocketListener(addr string, dispatcher Dispatcher, logger *slog.Logger) *websocketListener {
	return &websocketListener{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

func (l *websocketListener) start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleConn)
	l.httpServer = &http.Server{Addr: l.addr, Handler: mux}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Error("transport: websocket listener failed", "error", err)
		}
	}()
	l.logger.Info("transport: websocket listener started", "addr", l.addr)
	return nil
}

// handleConn upgrades one connection and serves instruction/response pairs
// on it until the client disconnects. Each frame is a single wire
// Instruction in, a single wire Response out — the same duplex shape as the
// NATS request path, just carried over a persistent socket instead of a
// per-call subject.
func (l *websocketListener) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("transport: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		instr, decErr := wire.DecodeInstruction(payload)
		var resp wire.Response
		if decErr != nil {
			resp = wire.Fail("ProtocolError", decErr.Error())
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			resp = l.dispatcher.Dispatch(ctx, instr)
			cancel()
		}

		b, encErr := wire.EncodeResponse(resp)
		if encErr != nil {
			l.logger.Error("transport: failed to encode websocket response", "error", encErr)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (l *websocketListener) stop(timeout time.Duration) {
	if l.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.httpServer.Shutdown(ctx); err != nil {
		l.logger.Warn("transport: websocket listener shutdown error", "error", err)
	}
	l.wg.Wait()
}
