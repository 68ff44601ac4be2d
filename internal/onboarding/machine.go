// Package onboarding drives the multi-step account login: api credentials,
// phone, verification code and the optional second factor, producing an
// authenticated session that the finalizer registers into a profile.
package onboarding

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/session"
)

// State of one operator's onboarding flow.
type State int

const (
	StateNone State = iota
	StateAwaitAPIID
	StateAwaitAPIHash
	StateAwaitPhone
	StateAwaitCode
	StateAwait2FA
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateAwaitAPIID:
		return "AWAITING_API_ID"
	case StateAwaitAPIHash:
		return "AWAITING_API_HASH"
	case StateAwaitPhone:
		return "AWAITING_PHONE"
	case StateAwaitCode:
		return "AWAITING_CODE"
	case StateAwait2FA:
		return "AWAITING_2FA"
	}
	return "UNKNOWN"
}

var (
	ErrNotOnboarding = errors.New("no onboarding in progress")
	ErrInvalidAPIID  = errors.New("api_id must be an integer")
)

// flow is the transient onboarding context for one operator. Only the fields
// valid for the current state are populated; each transition builds a fresh
// value instead of mutating shared state.
type flow struct {
	state   State
	apiID   int
	apiHash string
	phone   string
	client  session.Client // in-flight connection, set from StateAwaitCode on
}

// Outcome reports where the flow stands after an input was consumed.
type Outcome struct {
	State State
	Done  bool
}

// Finalizer registers a freshly authenticated session into the operator's
// profile and runs post-login wiring (listener attach, source joins,
// historical scan).
type Finalizer func(ctx context.Context, ownerID int64, cred profile.Credential, client session.Client) error

// Manager holds at most one onboarding flow per operator.
type Manager struct {
	dialer   session.Dialer
	finalize Finalizer
	log      *logger.Logger

	mu    sync.Mutex
	flows map[int64]*flow
}

// NewManager creates an onboarding manager.
func NewManager(dialer session.Dialer, finalize Finalizer, log *logger.Logger) *Manager {
	return &Manager{
		dialer:   dialer,
		finalize: finalize,
		log:      log,
		flows:    make(map[int64]*flow),
	}
}

// Begin starts (or restarts) onboarding for an operator. Any previous flow
// is abandoned first, disconnecting its half-open session.
func (m *Manager) Begin(ownerID int64) State {
	m.Abandon(ownerID)
	m.mu.Lock()
	m.flows[ownerID] = &flow{state: StateAwaitAPIID}
	m.mu.Unlock()
	return StateAwaitAPIID
}

// StateOf returns the current flow state for an operator.
func (m *Manager) StateOf(ownerID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flows[ownerID]; ok {
		return f.state
	}
	return StateNone
}

// Abandon discards an operator's flow. A half-open session is disconnected
// rather than leaked. Safe to call when no flow exists.
func (m *Manager) Abandon(ownerID int64) {
	m.mu.Lock()
	f, ok := m.flows[ownerID]
	delete(m.flows, ownerID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if f.client != nil {
		if err := f.client.Disconnect(); err != nil {
			m.log.Warn().Err(err).Int64("owner", ownerID).Msg("onboarding: disconnect on abandon failed")
		}
	}
	m.log.Debug().Int64("owner", ownerID).Str("state", f.state.String()).Msg("onboarding: flow abandoned")
}

// Submit feeds one line of operator input into the flow and advances it.
// Retryable failures (bad api_id, wrong code, wrong password) keep the flow
// in its current state and return the error for the caller to report;
// transport failures abort the flow back to NONE.
func (m *Manager) Submit(ctx context.Context, ownerID int64, input string) (Outcome, error) {
	m.mu.Lock()
	f, ok := m.flows[ownerID]
	m.mu.Unlock()
	if !ok {
		return Outcome{State: StateNone}, ErrNotOnboarding
	}

	input = strings.TrimSpace(input)

	switch f.state {
	case StateAwaitAPIID:
		apiID, err := strconv.Atoi(input)
		if err != nil {
			return Outcome{State: StateAwaitAPIID}, ErrInvalidAPIID
		}
		return m.advance(ownerID, &flow{state: StateAwaitAPIHash, apiID: apiID}), nil

	case StateAwaitAPIHash:
		return m.advance(ownerID, &flow{state: StateAwaitPhone, apiID: f.apiID, apiHash: input}), nil

	case StateAwaitPhone:
		return m.submitPhone(ctx, ownerID, f, input)

	case StateAwaitCode:
		return m.submitCode(ctx, ownerID, f, input)

	case StateAwait2FA:
		return m.submitPassword(ctx, ownerID, f, input)
	}
	return Outcome{State: StateNone}, ErrNotOnboarding
}

func (m *Manager) submitPhone(ctx context.Context, ownerID int64, f *flow, phone string) (Outcome, error) {
	client, err := m.dialer.Dial(ctx, f.apiID, f.apiHash, phone)
	if err != nil {
		m.drop(ownerID)
		m.log.Warn().Err(err).Int64("owner", ownerID).Msg("onboarding: dial failed, flow aborted")
		return Outcome{State: StateNone}, err
	}

	if err := client.RequestCode(ctx); err != nil {
		// transport failure: abort, do not leak the connection
		_ = client.Disconnect()
		m.drop(ownerID)
		m.log.Warn().Err(err).Int64("owner", ownerID).Msg("onboarding: code request failed, flow aborted")
		return Outcome{State: StateNone}, err
	}

	next := &flow{state: StateAwaitCode, apiID: f.apiID, apiHash: f.apiHash, phone: phone, client: client}
	return m.advance(ownerID, next), nil
}

func (m *Manager) submitCode(ctx context.Context, ownerID int64, f *flow, code string) (Outcome, error) {
	err := f.client.SignInCode(ctx, code)
	switch {
	case err == nil:
		return m.finish(ctx, ownerID, f, "")
	case errors.Is(err, session.ErrSecondFactorRequired):
		next := &flow{state: StateAwait2FA, apiID: f.apiID, apiHash: f.apiHash, phone: f.phone, client: f.client}
		return m.advance(ownerID, next), nil
	default:
		// wrong code or transient error: stay and let the operator retry
		return Outcome{State: StateAwaitCode}, err
	}
}

func (m *Manager) submitPassword(ctx context.Context, ownerID int64, f *flow, password string) (Outcome, error) {
	if err := f.client.SignInPassword(ctx, password); err != nil {
		return Outcome{State: StateAwait2FA}, err
	}
	return m.finish(ctx, ownerID, f, password)
}

// finish builds the immutable credential, hands the session to the finalizer
// and discards the flow.
func (m *Manager) finish(ctx context.Context, ownerID int64, f *flow, password string) (Outcome, error) {
	cred := profile.Credential{
		APIID:    f.apiID,
		APIHash:  f.apiHash,
		Phone:    f.phone,
		Password: password,
	}
	m.drop(ownerID)
	if err := m.finalize(ctx, ownerID, cred, f.client); err != nil {
		_ = f.client.Disconnect()
		return Outcome{State: StateNone}, err
	}
	m.log.Info().Int64("owner", ownerID).Str("phone", f.phone).Msg("onboarding: account authenticated")
	return Outcome{State: StateNone, Done: true}, nil
}

func (m *Manager) advance(ownerID int64, next *flow) Outcome {
	m.mu.Lock()
	m.flows[ownerID] = next
	m.mu.Unlock()
	return Outcome{State: next.state}
}

func (m *Manager) drop(ownerID int64) {
	m.mu.Lock()
	delete(m.flows, ownerID)
	m.mu.Unlock()
}
