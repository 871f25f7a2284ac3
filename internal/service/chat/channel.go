package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/observability"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/google/uuid"
)

// Service owns every chat channel. Each channel is serialized on its
// own lock: sequence numbers are assigned by that single owner, so two
// concurrent sends never share a sequence and delivery order matches
// assignment order.
type Service struct {
	fanout *notify.Fanout
	logger *logger.Logger

	mu       sync.RWMutex
	channels map[uuid.UUID]*channelState
}

type channelState struct {
	mu       sync.Mutex
	meta     domain.Channel
	closed   bool
	lastSeq  uint64
	messages []*domain.Message
	lastAck  map[uuid.UUID]uint64
}

// NewService creates the chat service
func NewService(fanout *notify.Fanout, log *logger.Logger) *Service {
	return &Service{
		fanout:   fanout,
		logger:   log,
		channels: make(map[uuid.UUID]*channelState),
	}
}

// Open creates the channel for a freshly matched ride. The channel id
// equals the active ride id.
func (s *Service) Open(channelID, riderID, driverID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.channels[channelID]; exists {
		return
	}
	s.channels[channelID] = &channelState{
		meta: domain.Channel{
			ID:       channelID,
			RiderID:  riderID,
			DriverID: driverID,
			OpenedAt: time.Now(),
		},
		lastAck: make(map[uuid.UUID]uint64),
	}
	s.logger.Info("Chat channel opened",
		logger.String("channel_id", channelID.String()),
	)
}

func (s *Service) state(channelID uuid.UUID) (*channelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.channels[channelID]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return st, nil
}

// Send records a message, assigns its sequence and attempts immediate
// delivery. Delivery is best-effort: an unreachable recipient never
// fails the send, the message is queued for replay instead.
func (s *Service) Send(ctx context.Context, channelID, senderID uuid.UUID, body string) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, domain.ErrEmptyMessage
	}

	st, err := s.state(channelID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil, domain.ErrChannelClosed
	}
	if !st.meta.Participant(senderID) {
		st.mu.Unlock()
		return nil, domain.ErrNotAParticipant
	}

	st.lastSeq++
	msg := &domain.Message{
		ID:        uuid.New(),
		ChannelID: channelID,
		SenderID:  senderID,
		Sequence:  st.lastSeq,
		Body:      body,
		State:     domain.StateSent,
		SentAt:    time.Now(),
	}
	st.messages = append(st.messages, msg)
	recipient := st.meta.Counterpart(senderID)
	st.mu.Unlock()

	observability.ChatMessages.Inc()

	delivered := s.fanout.Notify(ctx, recipient, events.New(events.TypeChatMessage, events.ChatMessage{
		ChannelID: channelID,
		MessageID: msg.ID,
		Sequence:  msg.Sequence,
		SenderID:  senderID,
		Body:      body,
		SentAt:    msg.SentAt,
	}))

	if delivered {
		st.mu.Lock()
		if msg.State == domain.StateSent {
			msg.State = domain.StateDelivered
		}
		st.mu.Unlock()

		if s.fanout.IsConnected(senderID) {
			s.fanout.Notify(ctx, senderID, events.New(events.TypeChatDelivered, events.ChatDelivered{
				ChannelID: channelID,
				MessageID: msg.ID,
				Sequence:  msg.Sequence,
			}))
		}
	}

	snapshot := *msg
	return &snapshot, nil
}

// AcknowledgeRead marks every message addressed to the reader with
// sequence at or below uptoSeq as read. Idempotent and monotonic: an
// acknowledgment at or below the current watermark is a no-op, never
// an error.
func (s *Service) AcknowledgeRead(channelID, readerID uuid.UUID, uptoSeq uint64) error {
	st, err := s.state(channelID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.meta.Participant(readerID) {
		return domain.ErrNotAParticipant
	}
	if uptoSeq > st.lastSeq {
		uptoSeq = st.lastSeq
	}
	if uptoSeq <= st.lastAck[readerID] {
		return nil
	}

	for _, msg := range st.messages {
		if msg.SenderID == readerID {
			continue
		}
		if msg.Sequence <= uptoSeq && msg.State != domain.StateRead {
			msg.State = domain.StateRead
		}
	}
	st.lastAck[readerID] = uptoSeq
	return nil
}

// Replay returns every message addressed to the participant with
// sequence above their last acknowledgment, in sequence order. Used on
// reconnect; replayed messages are marked delivered.
func (s *Service) Replay(channelID, participantID uuid.UUID) ([]*domain.Message, error) {
	st, err := s.state(channelID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.meta.Participant(participantID) {
		return nil, domain.ErrNotAParticipant
	}

	since := st.lastAck[participantID]
	var out []*domain.Message
	for _, msg := range st.messages {
		if msg.SenderID == participantID || msg.Sequence <= since {
			continue
		}
		if msg.State == domain.StateSent {
			msg.State = domain.StateDelivered
		}
		snapshot := *msg
		out = append(out, &snapshot)
	}
	return out, nil
}

// History returns the full message history for a participant
func (s *Service) History(channelID, participantID uuid.UUID) ([]*domain.Message, error) {
	st, err := s.state(channelID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.meta.Participant(participantID) {
		return nil, domain.ErrNotAParticipant
	}

	out := make([]*domain.Message, 0, len(st.messages))
	for _, msg := range st.messages {
		snapshot := *msg
		out = append(out, &snapshot)
	}
	return out, nil
}

// Close tears the channel down when its ride reaches a terminal state
// and returns the full history for archival. Idempotent.
func (s *Service) Close(channelID uuid.UUID) []*domain.Message {
	st, err := s.state(channelID)
	if err != nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.closed {
		st.closed = true
		now := time.Now()
		st.meta.ClosedAt = &now
		s.logger.Info("Chat channel closed",
			logger.String("channel_id", channelID.String()),
			logger.Int("messages", len(st.messages)),
		)
	}

	out := make([]*domain.Message, 0, len(st.messages))
	for _, msg := range st.messages {
		snapshot := *msg
		out = append(out, &snapshot)
	}
	return out
}
