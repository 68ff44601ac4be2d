package discovery

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/session"
)

// fakeClient is an in-memory session.Client for engine tests.
type fakeClient struct {
	id    uuid.UUID
	phone string

	publicIDs  map[string]int64 // username -> chat id
	privateIDs map[string]int64 // invite code -> chat id
	memberOf   map[int64]bool   // chats the account already participates in
	lastMsg    map[int64]string // source chat id -> last message text

	joinedPublic  []string
	joinedPrivate []string
	handler       func(chatID int64, text string)
}

func newFakeClient(phone string) *fakeClient {
	return &fakeClient{
		id:         uuid.New(),
		phone:      phone,
		publicIDs:  map[string]int64{},
		privateIDs: map[string]int64{},
		memberOf:   map[int64]bool{},
		lastMsg:    map[int64]string{},
	}
}

func (f *fakeClient) ID() uuid.UUID                           { return f.id }
func (f *fakeClient) Phone() string                           { return f.phone }
func (f *fakeClient) RequestCode(ctx context.Context) error   { return nil }
func (f *fakeClient) SignInCode(ctx context.Context, code string) error { return nil }
func (f *fakeClient) SignInPassword(ctx context.Context, pw string) error { return nil }

func (f *fakeClient) ResolveUsername(ctx context.Context, username string) (int64, error) {
	id, ok := f.publicIDs[username]
	if !ok {
		return 0, &session.ResolutionError{Ref: username, Err: errNoSuchChat}
	}
	return id, nil
}

func (f *fakeClient) JoinPublic(ctx context.Context, username string) (int64, error) {
	id, ok := f.publicIDs[username]
	if !ok {
		return 0, &session.ResolutionError{Ref: username, Err: errNoSuchChat}
	}
	if f.memberOf[id] {
		return 0, session.ErrAlreadyMember
	}
	f.memberOf[id] = true
	f.joinedPublic = append(f.joinedPublic, username)
	return id, nil
}

func (f *fakeClient) JoinPrivate(ctx context.Context, code string) (int64, error) {
	id, ok := f.privateIDs[code]
	if !ok {
		return 0, &session.ResolutionError{Ref: code, Err: errNoSuchChat}
	}
	if f.memberOf[id] {
		return 0, session.ErrAlreadyMember
	}
	f.memberOf[id] = true
	f.joinedPrivate = append(f.joinedPrivate, code)
	return id, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }

func (f *fakeClient) FetchLastMessage(ctx context.Context, chatID int64) (string, error) {
	return f.lastMsg[chatID], nil
}

func (f *fakeClient) OnNewMessage(fn func(chatID int64, text string)) { f.handler = fn }
func (f *fakeClient) Disconnect() error                               { return nil }

var errNoSuchChat = errors.New("no such chat")

func sortedTargets(p *profile.Profile, phone string) []int64 {
	ids := p.Targets(phone)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestEngine_JoinTarget(t *testing.T) {
	t.Run("private link registers target", func(t *testing.T) {
		p := profile.NewProfile(1)
		fc := newFakeClient("+100")
		fc.privateIDs["AbCdEf"] = -200

		eng := NewEngine(nil, logger.Nop())
		eng.JoinTarget(context.Background(), p, fc, "https://t.me/+AbCdEf")

		if got := p.Targets("+100"); !reflect.DeepEqual(got, []int64{-200}) {
			t.Errorf("targets = %v, want [-200]", got)
		}
	})

	t.Run("private already-member does not register", func(t *testing.T) {
		p := profile.NewProfile(1)
		fc := newFakeClient("+100")
		fc.privateIDs["AbCdEf"] = -200
		fc.memberOf[-200] = true

		eng := NewEngine(nil, logger.Nop())
		eng.JoinTarget(context.Background(), p, fc, "https://t.me/joinchat/AbCdEf")

		if got := p.Targets("+100"); len(got) != 0 {
			t.Errorf("targets = %v, want none", got)
		}
	})

	t.Run("public already-member re-resolves and registers", func(t *testing.T) {
		p := profile.NewProfile(1)
		fc := newFakeClient("+100")
		fc.publicIDs["chan"] = -300
		fc.memberOf[-300] = true

		eng := NewEngine(nil, logger.Nop())
		eng.JoinTarget(context.Background(), p, fc, "https://t.me/chan")

		if got := p.Targets("+100"); !reflect.DeepEqual(got, []int64{-300}) {
			t.Errorf("targets = %v, want [-300]", got)
		}
		if len(fc.joinedPublic) != 0 {
			t.Errorf("joins = %v, want none", fc.joinedPublic)
		}
	})

	t.Run("failed join is skipped", func(t *testing.T) {
		p := profile.NewProfile(1)
		fc := newFakeClient("+100")

		eng := NewEngine(nil, logger.Nop())
		eng.JoinTarget(context.Background(), p, fc, "https://t.me/ghost")

		if got := p.Targets("+100"); len(got) != 0 {
			t.Errorf("targets = %v, want none", got)
		}
	})

	t.Run("duplicate join registers once", func(t *testing.T) {
		p := profile.NewProfile(1)
		fc := newFakeClient("+100")
		fc.publicIDs["chan"] = -300

		eng := NewEngine(nil, logger.Nop())
		eng.JoinTarget(context.Background(), p, fc, "https://t.me/chan")
		eng.JoinTarget(context.Background(), p, fc, "https://t.me/chan")

		if got := p.Targets("+100"); !reflect.DeepEqual(got, []int64{-300}) {
			t.Errorf("targets = %v, want [-300]", got)
		}
	})
}

func TestEngine_JoinSource(t *testing.T) {
	p := profile.NewProfile(1)
	fc := newFakeClient("+100")
	fc.publicIDs["jobs_feed"] = -400

	eng := NewEngine(nil, logger.Nop())
	eng.JoinSource(context.Background(), p, fc, "@jobs_feed")

	if !p.IsSourceID(-400) {
		t.Error("source id should be registered")
	}
	// source joins never create broadcast targets
	if got := p.Targets("+100"); len(got) != 0 {
		t.Errorf("targets = %v, want none", got)
	}
}

func TestEngine_ScanHistory(t *testing.T) {
	p := profile.NewProfile(1)
	p.AddSourceID(-400)
	p.AddSourceID(-401)

	fc := newFakeClient("+100")
	fc.lastMsg[-400] = "fresh drop: https://t.me/+XYZ789 and https://t.me/open_chat"
	fc.lastMsg[-401] = "nothing to see here"
	fc.privateIDs["XYZ789"] = -500
	fc.publicIDs["open_chat"] = -501

	eng := NewEngine(nil, logger.Nop())
	eng.ScanHistory(context.Background(), p, fc)

	if got := sortedTargets(p, "+100"); !reflect.DeepEqual(got, []int64{-501, -500}) {
		t.Errorf("targets = %v, want [-501 -500]", got)
	}
}

func TestEngine_Attach(t *testing.T) {
	p := profile.NewProfile(1)
	p.AddSourceID(-400)

	fc := newFakeClient("+100")
	fc.privateIDs["XYZ789"] = -500

	eng := NewEngine(nil, logger.Nop())
	eng.Attach(p, fc)

	if fc.handler == nil {
		t.Fatal("listener was not attached")
	}

	// message from a non-source chat is ignored
	fc.handler(-999, "https://t.me/+XYZ789")
	if got := p.Targets("+100"); len(got) != 0 {
		t.Errorf("targets = %v, want none", got)
	}

	// message from a watched source triggers the join
	fc.handler(-400, "invite: https://t.me/+XYZ789")
	if got := p.Targets("+100"); !reflect.DeepEqual(got, []int64{-500}) {
		t.Errorf("targets = %v, want [-500]", got)
	}
}

type capturedEvent struct {
	phone  string
	chatID int64
}

type fakeEvents struct {
	discovered []capturedEvent
}

func (f *fakeEvents) TargetDiscovered(ctx context.Context, ownerID int64, phone string, chatID int64) {
	f.discovered = append(f.discovered, capturedEvent{phone: phone, chatID: chatID})
}

func TestEngine_PublishesDiscoveryEvents(t *testing.T) {
	p := profile.NewProfile(1)
	fc := newFakeClient("+100")
	fc.publicIDs["chan"] = -300

	pub := &fakeEvents{}
	eng := NewEngine(pub, logger.Nop())
	eng.JoinTarget(context.Background(), p, fc, "https://t.me/chan")
	eng.JoinTarget(context.Background(), p, fc, "https://t.me/chan") // dedupe: no second event

	want := []capturedEvent{{phone: "+100", chatID: -300}}
	if !reflect.DeepEqual(pub.discovered, want) {
		t.Errorf("events = %v, want %v", pub.discovered, want)
	}
}
