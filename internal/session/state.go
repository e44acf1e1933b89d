package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
)

type SessionState string

const (
	StateInactive   SessionState = "inactive"
	StateConnecting SessionState = "connecting"
	StateConnected  SessionState = "connected"
)

type Sender string

const (
	SenderClient Sender = "CLIENT"
	SenderAvatar Sender = "AVATAR"
)

type Message struct {
	ID      string `json:"id"`
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

type VoiceChatState struct {
	Muted   bool `json:"muted"`
	Active  bool `json:"active"`
	Loading bool `json:"loading"`
}

// Snapshot is a point-in-time copy of everything the UI renders.
type Snapshot struct {
	SessionState      SessionState             `json:"session_state"`
	Stream            *avatar.Stream           `json:"stream,omitempty"`
	VoiceChat         VoiceChatState           `json:"voice_chat"`
	Listening         bool                     `json:"listening"`
	UserTalking       bool                     `json:"user_talking"`
	AvatarTalking     bool                     `json:"avatar_talking"`
	ConnectionQuality avatar.ConnectionQuality `json:"connection_quality"`
	Messages          []Message                `json:"messages"`
}

// Notifier receives completed client messages and utterances. Implementations
// must not block.
type Notifier interface {
	Notify(message, sender string)
}

type StateOptions struct {
	Notifier Notifier
	// OnMessageComplete sees every message once it can no longer grow.
	OnMessageComplete func(Message)
}

// State is the per-session reactive container. It never fails; every
// mutation is pushed to subscribers as a fresh Snapshot.
type State struct {
	notifier   Notifier
	onComplete func(Message)

	mu            sync.Mutex
	sessionState  SessionState
	stream        *avatar.Stream
	voiceChat     VoiceChatState
	listening     bool
	userTalking   bool
	avatarTalking bool
	quality       avatar.ConnectionQuality
	messages      []Message
	currentSender Sender

	nextSubID int
	subs      map[int]chan Snapshot
}

func NewState(opts StateOptions) *State {
	return &State{
		notifier:     opts.Notifier,
		onComplete:   opts.OnMessageComplete,
		sessionState: StateInactive,
		voiceChat:    VoiceChatState{Muted: true},
		quality:      avatar.ConnectionQualityUnknown,
		messages:     []Message{},
		subs:         make(map[int]chan Snapshot),
	}
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *State) SessionState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionState
}

func (s *State) setSessionState(v SessionState) {
	s.update(func() { s.sessionState = v })
}

// transition moves from one session state to another and reports whether it did.
func (s *State) transition(from, to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionState != from {
		return false
	}
	s.sessionState = to
	s.publishLocked()
	return true
}

func (s *State) SetStream(v *avatar.Stream) {
	s.update(func() { s.stream = v })
}

func (s *State) SetMuted(v bool) {
	s.update(func() { s.voiceChat.Muted = v })
}

func (s *State) SetVoiceChatActive(v bool) {
	s.update(func() { s.voiceChat.Active = v })
}

func (s *State) SetVoiceChatLoading(v bool) {
	s.update(func() { s.voiceChat.Loading = v })
}

func (s *State) SetListening(v bool) {
	s.update(func() { s.listening = v })
}

func (s *State) SetUserTalking(v bool) {
	s.update(func() { s.userTalking = v })
}

func (s *State) SetAvatarTalking(v bool) {
	s.update(func() { s.avatarTalking = v })
}

func (s *State) SetConnectionQuality(v avatar.ConnectionQuality) {
	s.update(func() { s.quality = v })
}

// AddClientMessage appends a typed client message and notifies the webhook.
func (s *State) AddClientMessage(content string) {
	msg := Message{ID: newMessageID(), Sender: SenderClient, Content: content}
	s.update(func() {
		s.messages = append(s.messages, msg)
		s.currentSender = ""
	})
	s.notify(msg)
}

func (s *State) HandleUserTalkingMessage(delta string) {
	s.appendDelta(SenderClient, delta)
}

func (s *State) HandleStreamingTalkingMessage(delta string) {
	s.appendDelta(SenderAvatar, delta)
}

// appendDelta grows the last entry while the same sender keeps talking and
// starts a new entry otherwise.
func (s *State) appendDelta(sender Sender, delta string) {
	s.update(func() {
		if n := len(s.messages); n > 0 && s.currentSender == sender && s.messages[n-1].Sender == sender {
			s.messages[n-1].Content += delta
			return
		}
		s.currentSender = sender
		s.messages = append(s.messages, Message{ID: newMessageID(), Sender: sender, Content: delta})
	})
}

// HandleEndMessage closes the current utterance: the last entry goes to the
// webhook and the next delta starts a new entry.
func (s *State) HandleEndMessage() {
	var (
		last Message
		ok   bool
	)
	s.update(func() {
		if n := len(s.messages); n > 0 {
			last, ok = s.messages[n-1], true
		}
		s.currentSender = ""
	})
	if ok {
		s.notify(last)
	}
}

func (s *State) ClearMessages() {
	s.update(func() {
		s.messages = []Message{}
		s.currentSender = ""
	})
}

func (s *State) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel carrying the latest snapshot after every
// change. Slow readers only ever miss intermediate snapshots, never the
// newest one.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers counts the open Subscribe channels.
func (s *State) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *State) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	s.publishLocked()
}

func (s *State) notify(msg Message) {
	if s.notifier != nil {
		s.notifier.Notify(msg.Content, string(msg.Sender))
	}
	if s.onComplete != nil {
		s.onComplete(msg)
	}
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionState:      s.sessionState,
		VoiceChat:         s.voiceChat,
		Listening:         s.listening,
		UserTalking:       s.userTalking,
		AvatarTalking:     s.avatarTalking,
		ConnectionQuality: s.quality,
		Messages:          append([]Message{}, s.messages...),
	}
	if s.stream != nil {
		st := *s.stream
		snap.Stream = &st
	}
	return snap
}

func (s *State) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale snapshot the reader has not picked up yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
