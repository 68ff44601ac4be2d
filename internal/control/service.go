// Package control exposes the operator-facing operations of the
// orchestrator: account onboarding and removal, source channels, the message
// pool, timer policy, broadcast start/stop and privileged-operator
// management. The presentation layer only calls these and renders the
// results; it owns no state.
package control

import (
	"context"
	"errors"

	"github.com/blockedby/herald/internal/broadcast"
	"github.com/blockedby/herald/internal/discovery"
	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/onboarding"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/session"
)

var (
	ErrNotAllowed      = errors.New("operator is not allowed")
	ErrOwnerOnly       = errors.New("only the owner may manage operators")
	ErrInvalidInterval = errors.New("interval must be a positive number of minutes")
	ErrUnknownMode     = errors.New("timer mode must be fixed or random")
)

// Service wires the registries, the onboarding machine, the discovery engine
// and the broadcast scheduler into one operation surface.
type Service struct {
	reg    *profile.Registry
	engine *discovery.Engine
	sched  *broadcast.Scheduler
	log    *logger.Logger

	onboard *onboarding.Manager
}

// NewService creates the control service and its onboarding manager.
func NewService(reg *profile.Registry, engine *discovery.Engine, sched *broadcast.Scheduler, dialer session.Dialer, log *logger.Logger) *Service {
	s := &Service{
		reg:    reg,
		engine: engine,
		sched:  sched,
		log:    log,
	}
	s.onboard = onboarding.NewManager(dialer, s.finalizeAccount, log)
	return s
}

// Registry exposes the profile registry (for shutdown teardown in main).
func (s *Service) Registry() *profile.Registry { return s.reg }

func (s *Service) allow(operatorID int64) (*profile.Profile, error) {
	if !s.reg.IsAllowed(operatorID) {
		return nil, ErrNotAllowed
	}
	return s.reg.Get(operatorID), nil
}

// interrupt abandons any onboarding flow the operator has in progress.
// Issuing any other operation mid-flow discards the flow; the half-open
// session is disconnected rather than leaked.
func (s *Service) interrupt(operatorID int64) {
	s.onboard.Abandon(operatorID)
}

// --- accounts ---

// AccountInfo is the listing payload for one onboarded account.
type AccountInfo struct {
	Index int    `json:"index"`
	Phone string `json:"phone"`
	APIID int    `json:"api_id"`
}

// BeginAddAccount starts the onboarding flow for an operator.
func (s *Service) BeginAddAccount(operatorID int64) (onboarding.State, error) {
	if _, err := s.allow(operatorID); err != nil {
		return onboarding.StateNone, err
	}
	return s.onboard.Begin(operatorID), nil
}

// SubmitOnboarding feeds one line of input into the operator's flow.
func (s *Service) SubmitOnboarding(ctx context.Context, operatorID int64, input string) (onboarding.Outcome, error) {
	if _, err := s.allow(operatorID); err != nil {
		return onboarding.Outcome{}, err
	}
	return s.onboard.Submit(ctx, operatorID, input)
}

// OnboardingState reports where the operator's flow currently stands.
func (s *Service) OnboardingState(operatorID int64) onboarding.State {
	return s.onboard.StateOf(operatorID)
}

// finalizeAccount runs when onboarding completes: register the credential,
// attach the live discovery listener, join every configured source channel,
// then perform the one-time historical scan. Join order before scan order is
// a guarantee callers rely on.
func (s *Service) finalizeAccount(ctx context.Context, ownerID int64, cred profile.Credential, client session.Client) error {
	p := s.reg.Get(ownerID)
	if err := p.AddAccount(cred, client); err != nil {
		return err
	}

	s.engine.Attach(p, client)

	for _, ref := range p.SourceRefs() {
		s.engine.JoinSource(ctx, p, client, ref)
	}
	s.engine.ScanHistory(ctx, p, client)
	return nil
}

// ListAccounts returns the ordered account list.
func (s *Service) ListAccounts(operatorID int64) ([]AccountInfo, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return nil, err
	}
	creds := p.Accounts()
	out := make([]AccountInfo, len(creds))
	for i, c := range creds {
		out[i] = AccountInfo{Index: i + 1, Phone: c.Phone, APIID: c.APIID}
	}
	return out, nil
}

// RemoveAccount pops the account at 1-based index, proactively cancels its
// broadcast loop and disconnects its session.
func (s *Service) RemoveAccount(ctx context.Context, operatorID int64, idx int) (string, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return "", err
	}
	cred, client, err := p.RemoveAccount(idx)
	if err != nil {
		return "", err
	}

	// cancel before disconnect so no send races the teardown
	s.sched.CancelPhone(p, cred.Phone)

	if client != nil {
		if err := client.Disconnect(); err != nil {
			s.log.Warn().Err(err).Str("phone", cred.Phone).Msg("control: disconnect failed on account removal")
		}
	}
	s.log.Info().Int64("owner", operatorID).Str("phone", cred.Phone).Msg("control: account removed")
	return cred.Phone, nil
}

// --- source channels ---

// AddSourceChannel appends a reference, joins it on every live session and
// runs the historical scan for each.
func (s *Service) AddSourceChannel(ctx context.Context, operatorID int64, ref string) error {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return err
	}
	p.AddSourceRef(ref)

	sessions := p.Sessions()
	for _, sess := range sessions {
		s.engine.JoinSource(ctx, p, sess, ref)
	}
	for _, sess := range sessions {
		s.engine.ScanHistory(ctx, p, sess)
	}
	return nil
}

// ListSourceChannels returns the configured references in order.
func (s *Service) ListSourceChannels(operatorID int64) ([]string, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return nil, err
	}
	return p.SourceRefs(), nil
}

// RemoveSourceChannel pops the reference at 1-based index. The resolved id
// set is cleared and rebuilt from scratch by rejoining the remaining
// references on every session; correctness over efficiency.
func (s *Service) RemoveSourceChannel(ctx context.Context, operatorID int64, idx int) (string, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return "", err
	}
	removed, err := p.RemoveSourceRef(idx)
	if err != nil {
		return "", err
	}
	s.log.Info().Int64("owner", operatorID).Str("ref", removed).Msg("control: source channel removed, rebuilding id set")

	refs := p.SourceRefs()
	for _, sess := range p.Sessions() {
		for _, ref := range refs {
			s.engine.JoinSource(ctx, p, sess, ref)
		}
	}
	return removed, nil
}

// --- message pool ---

// AddMessage appends text to the operator's message pool.
func (s *Service) AddMessage(operatorID int64, text string) error {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return err
	}
	p.AddMessage(text)
	return nil
}

// ListMessages returns the pool in order.
func (s *Service) ListMessages(operatorID int64) ([]string, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return nil, err
	}
	return p.Messages(), nil
}

// RemoveMessage pops the message at 1-based index.
func (s *Service) RemoveMessage(operatorID int64, idx int) (string, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return "", err
	}
	return p.RemoveMessage(idx)
}

// --- timer ---

// TimerState is the listing payload for the timer configuration.
type TimerState struct {
	Mode         string `json:"mode"`
	FixedMinutes int    `json:"fixed_minutes"`
	RandomMin    int    `json:"random_min_minutes"`
	RandomMax    int    `json:"random_max_minutes"`
}

// SetTimerMode switches the timer between fixed and random.
func (s *Service) SetTimerMode(operatorID int64, mode string) error {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return err
	}
	switch profile.TimerMode(mode) {
	case profile.TimerFixed, profile.TimerRandom:
		p.SetTimerMode(profile.TimerMode(mode))
		return nil
	default:
		return ErrUnknownMode
	}
}

// SetTimerInterval sets the fixed interval; must be positive.
func (s *Service) SetTimerInterval(operatorID int64, minutes int) error {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return err
	}
	if minutes <= 0 {
		return ErrInvalidInterval
	}
	p.SetTimerInterval(minutes)
	return nil
}

// Timer returns the current timer configuration.
func (s *Service) Timer(operatorID int64) (TimerState, error) {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return TimerState{}, err
	}
	t := p.Timer()
	return TimerState{
		Mode:         string(t.Mode),
		FixedMinutes: t.FixedMinutes,
		RandomMin:    profile.RandomMinMinutes,
		RandomMax:    profile.RandomMaxMinutes,
	}, nil
}

// --- broadcasting ---

// StartBroadcast launches the per-session loops.
func (s *Service) StartBroadcast(operatorID int64) error {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return err
	}
	return s.sched.Start(p)
}

// StopBroadcast stops every loop of the operator's profile.
func (s *Service) StopBroadcast(operatorID int64) error {
	s.interrupt(operatorID)
	p, err := s.allow(operatorID)
	if err != nil {
		return err
	}
	return s.sched.Stop(p)
}

// BroadcastStatus is the listing payload for the broadcast state.
type BroadcastStatus struct {
	Active bool `json:"active"`
	Loops  int  `json:"loops"`
}

// Broadcast reports whether loops are running and how many.
func (s *Service) Broadcast(operatorID int64) (BroadcastStatus, error) {
	p, err := s.allow(operatorID)
	if err != nil {
		return BroadcastStatus{}, err
	}
	return BroadcastStatus{Active: p.Active(), Loops: p.TaskCount()}, nil
}

// ListTargets returns the discovered target chats grouped by session phone.
func (s *Service) ListTargets(operatorID int64) (map[string][]int64, error) {
	p, err := s.allow(operatorID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]int64)
	for phone := range p.Sessions() {
		out[phone] = p.Targets(phone)
	}
	return out, nil
}

// --- privileged operators ---

// AddOperator grants another operator access. Owner only.
func (s *Service) AddOperator(operatorID, newOperatorID int64) error {
	s.interrupt(operatorID)
	if !s.reg.IsOwner(operatorID) {
		return ErrOwnerOnly
	}
	s.reg.Promote(newOperatorID)
	s.log.Info().Int64("operator", newOperatorID).Msg("control: operator privileged")
	return nil
}

// RemoveOperator revokes access: broadcasting is stopped, every session is
// disconnected and the profile is dropped from the registry.
func (s *Service) RemoveOperator(ctx context.Context, operatorID, targetID int64) error {
	s.interrupt(operatorID)
	if !s.reg.IsOwner(operatorID) {
		return ErrOwnerOnly
	}
	p, err := s.reg.Demote(targetID)
	if err != nil {
		return err
	}
	if p != nil {
		s.teardown(p)
	}
	s.log.Info().Int64("operator", targetID).Msg("control: operator removed")
	return nil
}

// ListOperators returns the privileged operator ids. Owner only.
func (s *Service) ListOperators(operatorID int64) ([]int64, error) {
	s.interrupt(operatorID)
	if !s.reg.IsOwner(operatorID) {
		return nil, ErrOwnerOnly
	}
	return s.reg.Privileged(), nil
}

// Shutdown tears down every profile: stops broadcasts and disconnects all
// sessions. Called once on process exit.
func (s *Service) Shutdown() {
	for _, p := range s.reg.All() {
		s.teardown(p)
	}
}

func (s *Service) teardown(p *profile.Profile) {
	s.sched.StopAll(p)
	for phone, client := range p.Sessions() {
		if err := client.Disconnect(); err != nil {
			s.log.Warn().Err(err).Str("phone", phone).Msg("control: disconnect failed during teardown")
		}
	}
}
