// Package telegram implements the session capability on raw gotd/td MTProto
// clients, one per account. Session storage is in-memory only.
package telegram

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/session"
)

// Client is one connected MTProto account. It implements session.Client.
type Client struct {
	id    uuid.UUID
	phone string

	client  *telegram.Client
	api     *tg.Client
	stop    context.CancelFunc
	runErr  chan error
	limiter *RateLimiter
	log     *logger.Logger

	mu       sync.Mutex
	codeHash string          // phone_code_hash from the last SendCode
	peers    map[int64]int64 // channel id -> access hash
	handlers []func(chatID int64, text string)
}

// ID returns the opaque session id issued at dial time.
func (c *Client) ID() uuid.UUID { return c.id }

// Phone returns the phone number this client was dialed for.
func (c *Client) Phone() string { return c.phone }

// RequestCode asks Telegram to deliver a login code to the phone.
func (c *Client) RequestCode(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &session.TransportError{Op: "send code", Err: err}
	}
	sent, err := c.client.Auth().SendCode(ctx, c.phone, auth.SendCodeOptions{})
	if err != nil {
		c.noteFloodWait(err)
		return &session.TransportError{Op: "send code", Err: err}
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return &session.TransportError{Op: "send code", Err: errors.New("unexpected sent code response")}
	}
	c.mu.Lock()
	c.codeHash = code.PhoneCodeHash
	c.mu.Unlock()
	return nil
}

// SignInCode submits the verification code.
func (c *Client) SignInCode(ctx context.Context, code string) error {
	c.mu.Lock()
	codeHash := c.codeHash
	c.mu.Unlock()

	_, err := c.client.Auth().SignIn(ctx, c.phone, code, codeHash)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return session.ErrSecondFactorRequired
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY"):
		return session.ErrInvalidCode
	default:
		return &session.TransportError{Op: "sign in", Err: err}
	}
}

// SignInPassword submits the second-factor password.
func (c *Client) SignInPassword(ctx context.Context, password string) error {
	_, err := c.client.Auth().Password(ctx, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordInvalid), tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return session.ErrInvalidPassword
	default:
		return &session.TransportError{Op: "check password", Err: err}
	}
}

// ResolveUsername resolves a public username to its channel id. The access
// hash is remembered for later peer construction.
func (c *Client) ResolveUsername(ctx context.Context, username string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &session.ResolutionError{Ref: username, Err: err}
	}
	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.noteFloodWait(err)
		return 0, &session.ResolutionError{Ref: username, Err: err}
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			c.setPeer(ch.ID, ch.AccessHash)
			return ch.ID, nil
		}
	}
	return 0, &session.ResolutionError{Ref: username, Err: errors.New("not a channel")}
}

// JoinPublic resolves and joins a public channel or supergroup.
func (c *Client) JoinPublic(ctx context.Context, username string) (int64, error) {
	chatID, err := c.ResolveUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	hash, _ := c.peerHash(chatID)

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &session.ResolutionError{Ref: username, Err: err}
	}
	_, err = c.api.ChannelsJoinChannel(ctx, &tg.InputChannel{
		ChannelID:  chatID,
		AccessHash: hash,
	})
	if err != nil {
		if tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
			return 0, session.ErrAlreadyMember
		}
		c.noteFloodWait(err)
		return 0, &session.ResolutionError{Ref: username, Err: err}
	}
	return chatID, nil
}

// JoinPrivate imports a private invite code and returns the joined chat id.
func (c *Client) JoinPrivate(ctx context.Context, inviteCode string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &session.ResolutionError{Ref: inviteCode, Err: err}
	}
	updates, err := c.api.MessagesImportChatInvite(ctx, inviteCode)
	if err != nil {
		if tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
			return 0, session.ErrAlreadyMember
		}
		c.noteFloodWait(err)
		return 0, &session.ResolutionError{Ref: inviteCode, Err: err}
	}
	chatID := c.firstChatID(updates)
	if chatID == 0 {
		return 0, &session.ResolutionError{Ref: inviteCode, Err: errors.New("no chat in import response")}
	}
	return chatID, nil
}

// SendMessage sends text to a chat id previously learned via join/resolve.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &session.SendError{ChatID: chatID, Err: err}
	}
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     c.inputPeer(chatID),
		Message:  text,
		RandomID: rand.Int63(),
	})
	if err != nil {
		c.noteFloodWait(err)
		return &session.SendError{ChatID: chatID, Err: err}
	}
	return nil
}

// FetchLastMessage returns the text of the most recent message in a chat.
func (c *Client) FetchLastMessage(ctx context.Context, chatID int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &session.TransportError{Op: "get history", Err: err}
	}
	history, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  c.inputPeer(chatID),
		Limit: 1,
	})
	if err != nil {
		c.noteFloodWait(err)
		return "", &session.TransportError{Op: "get history", Err: err}
	}

	var raw []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	}
	for _, msg := range raw {
		if m, ok := msg.(*tg.Message); ok {
			return m.Message, nil
		}
	}
	return "", nil
}

// OnNewMessage registers a callback for incoming messages.
func (c *Client) OnNewMessage(fn func(chatID int64, text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Disconnect cancels the run loop and waits for a clean close.
func (c *Client) Disconnect() error {
	c.stop()
	select {
	case err := <-c.runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(5 * time.Second):
	}
	return nil
}

// --- internals ---

func (c *Client) emit(chatID int64, text string) {
	c.mu.Lock()
	handlers := make([]func(int64, string), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(chatID, text)
	}
}

func (c *Client) setPeer(chatID, accessHash int64) {
	c.mu.Lock()
	c.peers[chatID] = accessHash
	c.mu.Unlock()
}

func (c *Client) peerHash(chatID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.peers[chatID]
	return hash, ok
}

// inputPeer builds the peer for a chat id. Channels need the stored access
// hash; basic groups are addressed by id alone.
func (c *Client) inputPeer(chatID int64) tg.InputPeerClass {
	if hash, ok := c.peerHash(chatID); ok {
		return &tg.InputPeerChannel{ChannelID: chatID, AccessHash: hash}
	}
	return &tg.InputPeerChat{ChatID: chatID}
}

// firstChatID extracts the joined chat id from an import-invite response,
// remembering channel access hashes along the way.
func (c *Client) firstChatID(updates tg.UpdatesClass) int64 {
	var chats []tg.ChatClass
	switch u := updates.(type) {
	case *tg.Updates:
		chats = u.Chats
	case *tg.UpdatesCombined:
		chats = u.Chats
	}
	for _, chat := range chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			c.setPeer(ch.ID, ch.AccessHash)
			return ch.ID
		case *tg.Chat:
			return ch.ID
		}
	}
	return 0
}

// handleMessage feeds one incoming message into registered callbacks.
func (c *Client) handleMessage(msg tg.MessageClass) {
	m, ok := msg.(*tg.Message)
	if !ok || m.Out {
		return
	}
	var chatID int64
	switch peer := m.PeerID.(type) {
	case *tg.PeerChannel:
		chatID = peer.ChannelID
	case *tg.PeerChat:
		chatID = peer.ChatID
	case *tg.PeerUser:
		chatID = peer.UserID
	default:
		return
	}
	c.emit(chatID, m.Message)
}

// rememberEntities harvests channel access hashes delivered with updates.
func (c *Client) rememberEntities(e tg.Entities) {
	for id, ch := range e.Channels {
		c.setPeer(id, ch.AccessHash)
	}
}

// noteFloodWait feeds FLOOD_WAIT hints into the rate limiter.
func (c *Client) noteFloodWait(err error) {
	if wait, ok := floodWaitSeconds(err); ok {
		c.log.Warn().Int("wait_seconds", wait).Str("phone", c.phone).Msg("telegram: FLOOD_WAIT, backing off")
		c.limiter.SetFloodWait(wait)
	}
}
