// Package session defines the messaging-platform capability the orchestrator
// consumes. The core never talks MTProto itself; it goes through a Client
// produced by a Dialer, so tests and the telegram adapter are interchangeable.
package session

import (
	"context"

	"github.com/google/uuid"
)

// Client is one live authenticated connection for a single account.
// Implementations must be safe for concurrent use: broadcast loops and the
// discovery listener share the same client.
type Client interface {
	// ID is an opaque identifier issued at creation. Registries key on it
	// instead of comparing client values.
	ID() uuid.UUID

	// Phone returns the phone number this client was dialed for.
	Phone() string

	// RequestCode asks the platform to deliver a verification code to the
	// account's phone. Failures are *TransportError.
	RequestCode(ctx context.Context) error

	// SignInCode submits the verification code. Returns
	// ErrSecondFactorRequired when the account has a password set,
	// ErrInvalidCode when the code is wrong or expired.
	SignInCode(ctx context.Context, code string) error

	// SignInPassword submits the second-factor password after
	// ErrSecondFactorRequired. Returns ErrInvalidPassword on a wrong password.
	SignInPassword(ctx context.Context, password string) error

	// ResolveUsername resolves a public channel/group username (without @)
	// to its numeric chat id. Failures are *ResolutionError.
	ResolveUsername(ctx context.Context, username string) (int64, error)

	// JoinPublic joins a public channel/group by username and returns its
	// chat id. Returns ErrAlreadyMember (with a zero id) when the account is
	// already a participant; other failures are *ResolutionError.
	JoinPublic(ctx context.Context, username string) (int64, error)

	// JoinPrivate imports a private invite code and returns the joined chat
	// id. Returns ErrAlreadyMember when already a participant.
	JoinPrivate(ctx context.Context, inviteCode string) (int64, error)

	// SendMessage sends text to a chat. Failures are *SendError.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// FetchLastMessage returns the text of the most recent message in a
	// chat, or "" when the chat has no text messages.
	FetchLastMessage(ctx context.Context, chatID int64) (string, error)

	// OnNewMessage registers a callback for every incoming message. The
	// callback receives the originating chat id and the message text.
	// Callbacks registered after connect receive only subsequent messages.
	OnNewMessage(fn func(chatID int64, text string))

	// Disconnect closes the connection. The client is unusable afterwards.
	Disconnect() error
}

// Dialer opens a connection for raw api credentials. The returned client is
// connected but not yet authenticated; onboarding drives RequestCode/SignIn.
type Dialer interface {
	Dial(ctx context.Context, apiID int, apiHash, phone string) (Client, error)
}
