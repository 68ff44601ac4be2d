// Package broadcast runs one cancellable send loop per authenticated session:
// an immediate send to every target chat, then timed cycles until stopped.
// Loops never hold locks across sends or sleeps; they re-snapshot the target
// set and message pool every cycle, which is how concurrent registry
// mutations are reconciled.
package broadcast

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/session"
)

var (
	ErrAlreadyActive = errors.New("broadcasting is already active")
	ErrNotActive     = errors.New("broadcasting is already stopped")
	ErrNoSessions    = errors.New("no accounts connected")
	ErrNoMessages    = errors.New("message pool is empty")
	ErrNoTargets     = errors.New("no target chats registered")
)

// EventPublisher publishes broadcast-cycle events. Nil disables publishing.
type EventPublisher interface {
	BroadcastCycle(ctx context.Context, ownerID int64, phone string, sent, failed int)
}

// Scheduler starts and stops the per-session broadcast loops of a profile.
type Scheduler struct {
	events EventPublisher
	log    *logger.Logger

	// minuteUnit is the real duration of one "minute" of timer policy.
	// Tests shrink it so timed scenarios run in milliseconds.
	minuteUnit time.Duration
}

// NewScheduler creates a scheduler. events may be nil.
func NewScheduler(events EventPublisher, log *logger.Logger) *Scheduler {
	return &Scheduler{
		events:     events,
		log:        log,
		minuteUnit: time.Minute,
	}
}

// SetMinuteUnit overrides the timer scale (for tests).
func (s *Scheduler) SetMinuteUnit(d time.Duration) { s.minuteUnit = d }

// Start validates preconditions and launches one loop per session that has
// at least one target chat. Starting while already active is a reported
// no-op; starting always cancels and discards any leftover loops first.
func (s *Scheduler) Start(p *profile.Profile) error {
	if p.Active() {
		return ErrAlreadyActive
	}

	sessions := p.Sessions()
	if len(sessions) == 0 {
		return ErrNoSessions
	}
	if len(p.Messages()) == 0 {
		return ErrNoMessages
	}
	if !p.HasAnyTarget() {
		return ErrNoTargets
	}

	// defensive reset: no loop from a previous run may survive a new start
	awaitTasks(cancelTasks(p.TakeTasks()))

	p.SetActive(true)

	started := 0
	for phone, sess := range sessions {
		if len(p.Targets(phone)) == 0 {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		task := &profile.Task{Cancel: cancel, Done: make(chan struct{})}
		p.PutTask(phone, task)
		go s.run(ctx, p, phone, sess, task.Done)
		started++
	}

	s.log.Info().Int64("owner", p.OwnerID()).Int("loops", started).Msg("broadcast: started")
	return nil
}

// Stop clears the active flag, cancels every running loop for the profile
// and waits until each has exited. No send happens after Stop returns.
func (s *Scheduler) Stop(p *profile.Profile) error {
	if !p.Active() {
		return ErrNotActive
	}
	p.SetActive(false)
	awaitTasks(cancelTasks(p.TakeTasks()))
	s.log.Info().Int64("owner", p.OwnerID()).Msg("broadcast: stopped")
	return nil
}

// CancelPhone cancels and awaits the loop of a single phone, if one runs.
// Used on account removal so the loop never outlives its session.
func (s *Scheduler) CancelPhone(p *profile.Profile, phone string) {
	if task, ok := p.TakeTask(phone); ok {
		task.Cancel()
		<-task.Done
		s.log.Info().Int64("owner", p.OwnerID()).Str("phone", phone).Msg("broadcast: loop cancelled for removed account")
	}
}

// StopAll tears down broadcasting for a profile regardless of flag state.
// Used on operator removal and shutdown.
func (s *Scheduler) StopAll(p *profile.Profile) {
	p.SetActive(false)
	awaitTasks(cancelTasks(p.TakeTasks()))
}

// run is one session's loop. Snapshot, immediate send, then timed cycles
// until the flag clears or the context cancels at the sleep boundary.
func (s *Scheduler) run(ctx context.Context, p *profile.Profile, phone string, sess session.Client, done chan struct{}) {
	defer close(done)

	log := s.log.With().Int64("owner", p.OwnerID()).Str("phone", phone).Logger()

	targets := p.Targets(phone)
	messages := p.Messages()
	if len(targets) == 0 || len(messages) == 0 {
		log.Info().Msg("broadcast: nothing to send for this session")
		return
	}

	s.sendCycle(ctx, p, phone, sess, targets, messages)

	for p.Active() {
		minutes := s.nextInterval(p.Timer())
		log.Info().Int("minutes", minutes).Msg("broadcast: sleeping until next cycle")

		timer := time.NewTimer(time.Duration(minutes) * s.minuteUnit)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("broadcast: loop cancelled")
			return
		case <-timer.C:
		}

		if !p.Active() {
			return
		}

		// registries may have changed while sleeping
		targets = p.Targets(phone)
		messages = p.Messages()
		if len(targets) == 0 || len(messages) == 0 {
			log.Info().Msg("broadcast: no targets or messages this cycle")
			continue
		}
		s.sendCycle(ctx, p, phone, sess, targets, messages)
	}
}

// sendCycle sends one uniformly drawn message to every target chat. Each
// send is independent: a failure is logged and the rest proceed.
func (s *Scheduler) sendCycle(ctx context.Context, p *profile.Profile, phone string, sess session.Client, targets []int64, messages []string) {
	sent, failed := 0, 0
	for _, chatID := range targets {
		text := messages[rand.Intn(len(messages))]
		if err := sess.SendMessage(ctx, chatID, text); err != nil {
			failed++
			s.log.Warn().Err(err).
				Int64("owner", p.OwnerID()).
				Str("phone", phone).
				Int64("chat_id", chatID).
				Msg("broadcast: send failed")
			continue
		}
		sent++
	}
	s.log.Info().
		Int64("owner", p.OwnerID()).
		Str("phone", phone).
		Int("sent", sent).
		Int("failed", failed).
		Msg("broadcast: cycle complete")
	if s.events != nil {
		s.events.BroadcastCycle(ctx, p.OwnerID(), phone, sent, failed)
	}
}

// nextInterval computes the wait in minutes for one cycle. Fixed mode uses
// the configured value; random mode draws fresh per cycle in [15, 500].
func (s *Scheduler) nextInterval(policy profile.TimerPolicy) int {
	if policy.Mode == profile.TimerRandom {
		return profile.RandomMinMinutes + rand.Intn(profile.RandomMaxMinutes-profile.RandomMinMinutes+1)
	}
	return policy.FixedMinutes
}

func cancelTasks(tasks []*profile.Task) []*profile.Task {
	for _, t := range tasks {
		t.Cancel()
	}
	return tasks
}

func awaitTasks(tasks []*profile.Task) {
	for _, t := range tasks {
		<-t.Done
	}
}
