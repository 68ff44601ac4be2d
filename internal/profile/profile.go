// Package profile holds all mutable per-operator state: accounts, sessions,
// source channels, target chats, the message pool, timer policy and running
// broadcast task handles. Everything is in-memory and guarded by one mutex
// per profile; schedulers read through snapshots instead of holding locks.
package profile

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/blockedby/herald/internal/session"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrPhoneExists     = errors.New("account with this phone already exists")
)

// Credential is one onboarded account. Immutable after finalize.
type Credential struct {
	APIID    int
	APIHash  string
	Phone    string
	Password string // empty when the account has no second factor
}

// TimerMode selects how the broadcast scheduler computes wait intervals.
type TimerMode string

const (
	TimerFixed  TimerMode = "fixed"
	TimerRandom TimerMode = "random"
)

// Timer bounds for random mode, in minutes.
const (
	RandomMinMinutes = 15
	RandomMaxMinutes = 500
)

// TimerPolicy controls the wait between broadcast cycles. Random mode ignores
// FixedMinutes and draws fresh per cycle.
type TimerPolicy struct {
	Mode         TimerMode
	FixedMinutes int
}

// Task is the handle of one running broadcast loop. Stop and account removal
// cancel it and wait on Done; loops close Done on exit.
type Task struct {
	Cancel func()
	Done   chan struct{}
}

// Profile is the state container for one operator.
type Profile struct {
	ownerID int64

	mu         sync.Mutex
	accounts   []Credential
	sessions   map[string]session.Client       // phone -> live client
	phoneByID  map[uuid.UUID]string            // session id -> phone (inverse lookup)
	sourceRefs []string                        // configured references, ordered
	sourceIDs  map[int64]struct{}              // resolved source chat ids
	targets    map[string]map[int64]struct{}   // phone -> target chat ids
	messages   []string
	timer      TimerPolicy
	active     bool
	tasks      map[string]*Task // phone -> running broadcast loop
}

// NewProfile creates an empty profile with the default timer policy.
func NewProfile(ownerID int64) *Profile {
	return &Profile{
		ownerID:   ownerID,
		sessions:  make(map[string]session.Client),
		phoneByID: make(map[uuid.UUID]string),
		sourceIDs: make(map[int64]struct{}),
		targets:   make(map[string]map[int64]struct{}),
		timer:     TimerPolicy{Mode: TimerFixed, FixedMinutes: 5},
		tasks:     make(map[string]*Task),
	}
}

// OwnerID returns the operator this profile belongs to.
func (p *Profile) OwnerID() int64 { return p.ownerID }

// --- accounts & sessions ---

// AddAccount registers an authenticated session under its credential.
// A phone maps to at most one live session.
func (p *Profile) AddAccount(cred Credential, client session.Client) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[cred.Phone]; ok {
		return ErrPhoneExists
	}
	p.accounts = append(p.accounts, cred)
	p.sessions[cred.Phone] = client
	p.phoneByID[client.ID()] = cred.Phone
	return nil
}

// Accounts returns a copy of the ordered credential list.
func (p *Profile) Accounts() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Credential, len(p.accounts))
	copy(out, p.accounts)
	return out
}

// RemoveAccount pops the credential at 1-based index idx and detaches its
// session from the maps. The caller owns disconnecting the returned client
// and cancelling its broadcast task.
func (p *Profile) RemoveAccount(idx int) (Credential, session.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 1 || idx > len(p.accounts) {
		return Credential{}, nil, ErrIndexOutOfRange
	}
	cred := p.accounts[idx-1]
	p.accounts = append(p.accounts[:idx-1], p.accounts[idx:]...)
	client := p.sessions[cred.Phone]
	delete(p.sessions, cred.Phone)
	if client != nil {
		delete(p.phoneByID, client.ID())
	}
	return cred, client, nil
}

// Session returns the live client for a phone, or nil.
func (p *Profile) Session(phone string) session.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[phone]
}

// Sessions returns a phone->client snapshot of all live sessions.
func (p *Profile) Sessions() map[string]session.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]session.Client, len(p.sessions))
	for phone, c := range p.sessions {
		out[phone] = c
	}
	return out
}

// PhoneOf resolves a session id back to its phone.
func (p *Profile) PhoneOf(id uuid.UUID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	phone, ok := p.phoneByID[id]
	return phone, ok
}

// --- source channels ---

// AddSourceRef appends a configured source-channel reference.
func (p *Profile) AddSourceRef(ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceRefs = append(p.sourceRefs, ref)
}

// RemoveSourceRef pops the reference at 1-based index idx and clears the
// entire resolved id set in the same critical section; the caller rebuilds
// the set by rejoining the remaining references.
func (p *Profile) RemoveSourceRef(idx int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 1 || idx > len(p.sourceRefs) {
		return "", ErrIndexOutOfRange
	}
	removed := p.sourceRefs[idx-1]
	p.sourceRefs = append(p.sourceRefs[:idx-1], p.sourceRefs[idx:]...)
	p.sourceIDs = make(map[int64]struct{})
	return removed, nil
}

// SourceRefs returns a copy of the configured references.
func (p *Profile) SourceRefs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sourceRefs))
	copy(out, p.sourceRefs)
	return out
}

// AddSourceID records a resolved source chat id.
func (p *Profile) AddSourceID(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceIDs[id] = struct{}{}
}

// IsSourceID reports whether a chat id belongs to a watched source channel.
func (p *Profile) IsSourceID(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sourceIDs[id]
	return ok
}

// SourceIDs returns a snapshot of the resolved source chat ids.
func (p *Profile) SourceIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, 0, len(p.sourceIDs))
	for id := range p.sourceIDs {
		out = append(out, id)
	}
	return out
}

// --- target chats ---

// AddTarget records a discovered target chat for a phone. Set semantics:
// returns false when the id was already registered.
func (p *Profile) AddTarget(phone string, chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.targets[phone]
	if !ok {
		set = make(map[int64]struct{})
		p.targets[phone] = set
	}
	if _, dup := set[chatID]; dup {
		return false
	}
	set[chatID] = struct{}{}
	return true
}

// Targets returns a snapshot of the target chat ids for a phone.
func (p *Profile) Targets(phone string) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, 0, len(p.targets[phone]))
	for id := range p.targets[phone] {
		out = append(out, id)
	}
	return out
}

// HasAnyTarget reports whether any phone has at least one target chat.
func (p *Profile) HasAnyTarget() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, set := range p.targets {
		if len(set) > 0 {
			return true
		}
	}
	return false
}

// --- message pool ---

// AddMessage appends text to the message pool.
func (p *Profile) AddMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, text)
}

// RemoveMessage pops the message at 1-based index idx. Out-of-range leaves
// the pool unchanged.
func (p *Profile) RemoveMessage(idx int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 1 || idx > len(p.messages) {
		return "", ErrIndexOutOfRange
	}
	removed := p.messages[idx-1]
	p.messages = append(p.messages[:idx-1], p.messages[idx:]...)
	return removed, nil
}

// Messages returns a copy of the message pool.
func (p *Profile) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	copy(out, p.messages)
	return out
}

// --- timer & broadcast state ---

// Timer returns the current timer policy.
func (p *Profile) Timer() TimerPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer
}

// SetTimerMode switches between fixed and random intervals.
func (p *Profile) SetTimerMode(mode TimerMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer.Mode = mode
}

// SetTimerInterval sets the fixed interval in minutes.
func (p *Profile) SetTimerInterval(minutes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer.FixedMinutes = minutes
}

// Active reports whether broadcasting is on for this profile.
func (p *Profile) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetActive flips the broadcast-active flag.
func (p *Profile) SetActive(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = v
}

// PutTask tracks a running broadcast loop for a phone.
func (p *Profile) PutTask(phone string, t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[phone] = t
}

// TakeTask removes and returns the task handle for one phone.
func (p *Profile) TakeTask(phone string) (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[phone]
	delete(p.tasks, phone)
	return t, ok
}

// TakeTasks removes and returns every tracked task handle.
func (p *Profile) TakeTasks() []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	p.tasks = make(map[string]*Task)
	return out
}

// TaskCount returns the number of tracked broadcast loops.
func (p *Profile) TaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}
