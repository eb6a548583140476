package server

import (
	"context"
	"errors"
	"net"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/loom/internal/common"
	"github.com/ternarybob/loom/internal/engine"
)

// Listener accepts worker connections and runs one Session per connection.
type Listener struct {
	dispatcher *engine.Dispatcher
	limiter    *rate.Limiter
	logger     arbor.ILogger

	listener net.Listener
}

// NewListener builds a worker listener. A zero accept rate disables
// throttling.
func NewListener(dispatcher *engine.Dispatcher, limits common.LimitsConfig, logger arbor.ILogger) *Listener {
	var limiter *rate.Limiter
	if limits.AcceptPerSecond > 0 {
		burst := limits.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(limits.AcceptPerSecond), burst)
	}
	return &Listener{
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger,
	}
}

// Listen binds the address; Serve accepts until ctx is cancelled.
func (l *Listener) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.listener = listener
	l.logger.Info().Str("addr", listener.Addr().String()).Msg("Worker port listening")
	return nil
}

// Addr reports the bound address; valid after Listen.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts connections until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = l.listener.Close()
	}()

	for {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return
			}
		}

		conn, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			l.logger.Warn().Err(err).Msg("Accept failed")
			continue
		}

		l.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Worker connected")
		session := NewSession(conn, l.dispatcher, l.logger)
		go session.Run()
	}
}
