package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/session"
)

// EventPublisher publishes discovery events. Nil publisher disables publishing.
type EventPublisher interface {
	TargetDiscovered(ctx context.Context, ownerID int64, phone string, chatID int64)
}

// Engine implements the join primitive in its two registration flavors:
// joining a discovered link registers a target chat, joining an operator-
// configured source channel registers a watched source id. It also owns the
// historical scan and the live listener.
type Engine struct {
	events EventPublisher
	log    *logger.Logger
}

// NewEngine creates a discovery engine. events may be nil.
func NewEngine(events EventPublisher, log *logger.Logger) *Engine {
	return &Engine{events: events, log: log}
}

// JoinTarget joins one discovered link and registers the resulting chat as a
// broadcast target for the session's phone. Already-member on a private link
// is success without re-registration; already-member on a public link
// re-resolves the entity and registers the id anyway. Any other failure is
// logged and the link is skipped, never retried.
func (e *Engine) JoinTarget(ctx context.Context, p *profile.Profile, sess session.Client, link string) {
	link = strings.TrimSpace(link)
	log := e.log.With().Int64("owner", p.OwnerID()).Str("phone", sess.Phone()).Str("link", link).Logger()

	if code, ok := ParseInviteCode(link); ok {
		chatID, err := sess.JoinPrivate(ctx, code)
		switch {
		case errors.Is(err, session.ErrAlreadyMember):
			log.Info().Msg("discovery: already participant (private)")
		case err != nil:
			log.Warn().Err(err).Msg("discovery: private join failed, skipping")
		default:
			e.registerTarget(ctx, p, sess.Phone(), chatID)
			log.Info().Int64("chat_id", chatID).Msg("discovery: joined private chat as target")
		}
		return
	}

	username := ParseUsername(link)
	chatID, err := sess.JoinPublic(ctx, username)
	switch {
	case errors.Is(err, session.ErrAlreadyMember):
		// still a target: re-resolve so the id lands in the registry
		chatID, err = sess.ResolveUsername(ctx, username)
		if err != nil {
			log.Warn().Err(err).Msg("discovery: re-resolve after already-participant failed")
			return
		}
		e.registerTarget(ctx, p, sess.Phone(), chatID)
		log.Info().Int64("chat_id", chatID).Msg("discovery: already participant, target registered")
	case err != nil:
		log.Warn().Err(err).Msg("discovery: public join failed, skipping")
	default:
		e.registerTarget(ctx, p, sess.Phone(), chatID)
		log.Info().Int64("chat_id", chatID).Msg("discovery: joined public chat as target")
	}
}

// JoinSource joins one operator-configured source channel reference on the
// given session and records its resolved id into the profile's source set.
// Source joins never touch the target registry.
func (e *Engine) JoinSource(ctx context.Context, p *profile.Profile, sess session.Client, ref string) {
	ref = strings.TrimSpace(ref)
	log := e.log.With().Int64("owner", p.OwnerID()).Str("phone", sess.Phone()).Str("ref", ref).Logger()

	if code, ok := ParseInviteCode(ref); ok {
		chatID, err := sess.JoinPrivate(ctx, code)
		switch {
		case errors.Is(err, session.ErrAlreadyMember):
			// private invites cannot be re-resolved without the chat id
			log.Info().Msg("discovery: already in private source channel")
		case err != nil:
			log.Warn().Err(err).Msg("discovery: private source join failed")
		default:
			p.AddSourceID(chatID)
			log.Info().Int64("chat_id", chatID).Msg("discovery: joined private source channel")
		}
		return
	}

	username := ParseUsername(ref)
	chatID, err := sess.JoinPublic(ctx, username)
	switch {
	case errors.Is(err, session.ErrAlreadyMember):
		chatID, err = sess.ResolveUsername(ctx, username)
		if err != nil {
			log.Warn().Err(err).Msg("discovery: source re-resolve failed")
			return
		}
		p.AddSourceID(chatID)
		log.Info().Int64("chat_id", chatID).Msg("discovery: already in source channel")
	case err != nil:
		log.Warn().Err(err).Msg("discovery: source join failed")
	default:
		p.AddSourceID(chatID)
		log.Info().Int64("chat_id", chatID).Msg("discovery: joined source channel")
	}
}

// ScanHistory performs the one-time historical scan: for every resolved
// source channel, fetch only the most recent message and join every invite
// link it contains.
func (e *Engine) ScanHistory(ctx context.Context, p *profile.Profile, sess session.Client) {
	for _, chatID := range p.SourceIDs() {
		text, err := sess.FetchLastMessage(ctx, chatID)
		if err != nil {
			e.log.Warn().Err(err).
				Int64("owner", p.OwnerID()).
				Str("phone", sess.Phone()).
				Int64("source_id", chatID).
				Msg("discovery: failed to read last message")
			continue
		}
		links := ExtractLinks(text)
		if len(links) == 0 {
			continue
		}
		e.log.Info().
			Int64("source_id", chatID).
			Str("phone", sess.Phone()).
			Int("links", len(links)).
			Msg("discovery: last message carries invite links")
		for _, link := range links {
			e.JoinTarget(ctx, p, sess, link)
		}
	}
}

// Attach registers the live listener on a session's incoming-message stream.
// Messages from watched source channels are scanned for invite links exactly
// like the historical scan.
func (e *Engine) Attach(p *profile.Profile, sess session.Client) {
	sess.OnNewMessage(func(chatID int64, text string) {
		if !p.IsSourceID(chatID) {
			return
		}
		links := ExtractLinks(text)
		if len(links) == 0 {
			return
		}
		e.log.Info().
			Int64("source_id", chatID).
			Str("phone", sess.Phone()).
			Int("links", len(links)).
			Msg("discovery: new message carries invite links")
		for _, link := range links {
			e.JoinTarget(context.Background(), p, sess, link)
		}
	})
}

func (e *Engine) registerTarget(ctx context.Context, p *profile.Profile, phone string, chatID int64) {
	if !p.AddTarget(phone, chatID) {
		return
	}
	e.log.Info().
		Int64("owner", p.OwnerID()).
		Str("phone", phone).
		Int64("chat_id", chatID).
		Msg("discovery: registered target chat")
	if e.events != nil {
		e.events.TargetDiscovered(ctx, p.OwnerID(), phone, chatID)
	}
}
