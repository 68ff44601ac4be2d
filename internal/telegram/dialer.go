package telegram

import (
	"context"

	"github.com/google/uuid"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	tdsession "github.com/gotd/td/session"

	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/session"
)

// Dialer opens MTProto connections. Implements session.Dialer.
type Dialer struct {
	log *logger.Logger
}

// NewDialer creates a dialer.
func NewDialer(log *logger.Logger) *Dialer {
	return &Dialer{log: log}
}

// Dial connects a fresh client for the given api credentials. The returned
// client is connected but unauthenticated; the onboarding flow drives
// RequestCode and the sign-in calls. The connection runs on a background
// goroutine until Disconnect.
func (d *Dialer) Dial(ctx context.Context, apiID int, apiHash, phone string) (session.Client, error) {
	c := &Client{
		id:      uuid.New(),
		phone:   phone,
		limiter: DefaultRateLimiter(),
		log:     d.log,
		peers:   make(map[int64]int64),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(_ context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.rememberEntities(e)
		c.handleMessage(u.Message)
		return nil
	})
	dispatcher.OnNewMessage(func(_ context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.rememberEntities(e)
		c.handleMessage(u.Message)
		return nil
	})

	// in-memory session storage: orchestrator state does not survive restarts
	tgc := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &tdsession.StorageMemory{},
		UpdateHandler:  dispatcher,
	})

	runCtx, stop := context.WithCancel(context.Background())
	ready := make(chan struct{})
	runErr := make(chan error, 1)
	go func() {
		runErr <- tgc.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
	case err := <-runErr:
		stop()
		return nil, &session.TransportError{Op: "connect", Err: err}
	case <-ctx.Done():
		stop()
		return nil, &session.TransportError{Op: "connect", Err: ctx.Err()}
	}

	c.client = tgc
	c.api = tgc.API()
	c.stop = stop
	c.runErr = runErr

	d.log.Info().Str("phone", phone).Str("session_id", c.id.String()).Msg("telegram: client connected")
	return c, nil
}
