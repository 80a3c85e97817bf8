package message

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/conversation"
)

// fakeConversationRepo is a minimal conversation.Repository backing a single pre-seeded conversation, just enough
// to drive conversation.Service's membership checks from this package's tests.
type fakeConversationRepo struct {
	conv    conversation.Conversation
	members map[uuid.UUID]bool
}

func newFakeConversationRepo(members ...uuid.UUID) *fakeConversationRepo {
	f := &fakeConversationRepo{conv: conversation.Conversation{ID: uuid.New()}, members: map[uuid.UUID]bool{}}
	for _, m := range members {
		f.members[m] = true
	}
	return f
}

func (f *fakeConversationRepo) Create(ctx context.Context, actorID uuid.UUID, memberIDs []uuid.UUID, isGroup bool, name *string) (*conversation.Conversation, error) {
	return &f.conv, nil
}
func (f *fakeConversationRepo) FindDirect(ctx context.Context, a, b uuid.UUID) (*conversation.Conversation, error) {
	return nil, nil
}
func (f *fakeConversationRepo) Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	if id != f.conv.ID {
		return nil, conversation.ErrNotFound
	}
	return &f.conv, nil
}
func (f *fakeConversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]conversation.Member, error) {
	var out []conversation.Member
	for uid := range f.members {
		out = append(out, conversation.Member{ConversationID: conversationID, UserID: uid, Role: conversation.RoleMember})
	}
	return out, nil
}
func (f *fakeConversationRepo) ListForUser(ctx context.Context, actorID uuid.UUID) ([]conversation.WithLastMessage, error) {
	return nil, nil
}
func (f *fakeConversationRepo) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return f.members[userID], nil
}
func (f *fakeConversationRepo) UsersExist(ctx context.Context, ids []uuid.UUID) (bool, error) {
	return true, nil
}

// fakeRepository is an in-memory message.Repository used to exercise Service without a database.
type fakeRepository struct {
	messages map[uuid.UUID]*Message
	statuses map[uuid.UUID]map[uuid.UUID]*Status // messageID -> userID -> status
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{messages: map[uuid.UUID]*Message{}, statuses: map[uuid.UUID]map[uuid.UUID]*Status{}}
}

func (f *fakeRepository) Send(ctx context.Context, params SendParams) (*Message, error) {
	msg := &Message{
		ID: uuid.New(), ConversationID: params.ConversationID, SenderID: params.SenderID,
		Content: params.Content, Type: params.Type, MediaPath: params.MediaPath, CreatedAt: time.Now(),
	}
	f.messages[msg.ID] = msg
	f.statuses[msg.ID] = map[uuid.UUID]*Status{
		params.SenderID: {MessageID: msg.ID, UserID: params.SenderID, DeliveredAt: &msg.CreatedAt},
	}
	return msg, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (f *fakeRepository) List(ctx context.Context, conversationID uuid.UUID, cursor *time.Time, limit int) (Page, error) {
	var out []Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return Page{Messages: out}, nil
}

func (f *fakeRepository) SetDelivered(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	byUser, ok := f.statuses[messageID]
	if !ok {
		byUser = map[uuid.UUID]*Status{}
		f.statuses[messageID] = byUser
	}
	st, ok := byUser[userID]
	if !ok {
		now := time.Now()
		byUser[userID] = &Status{MessageID: messageID, UserID: userID, DeliveredAt: &now}
		return true, nil
	}
	if st.DeliveredAt != nil {
		return false, nil
	}
	now := time.Now()
	st.DeliveredAt = &now
	return true, nil
}

func (f *fakeRepository) SetReadBatch(ctx context.Context, conversationID, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	var updated []uuid.UUID
	for _, id := range messageIDs {
		msg, ok := f.messages[id]
		if !ok || msg.ConversationID != conversationID {
			continue
		}
		byUser, ok := f.statuses[id]
		if !ok {
			byUser = map[uuid.UUID]*Status{}
			f.statuses[id] = byUser
		}
		st, ok := byUser[userID]
		if !ok {
			st = &Status{MessageID: id, UserID: userID}
			byUser[userID] = st
		}
		if st.ReadAt != nil {
			continue
		}
		now := time.Now()
		if st.DeliveredAt == nil {
			st.DeliveredAt = &now
		}
		st.ReadAt = &now
		updated = append(updated, id)
	}
	return updated, nil
}

func (f *fakeRepository) GetStatuses(ctx context.Context, messageID uuid.UUID) ([]Status, error) {
	var out []Status
	for _, st := range f.statuses[messageID] {
		out = append(out, *st)
	}
	return out, nil
}

func wantAPIErr(t *testing.T, err error, kind apierr.Kind) {
	t.Helper()
	apiErr, ok := apierr.As(err)
	if !ok {
		t.Fatalf("error = %v, want *apierr.Error", err)
	}
	if apiErr.Kind != kind {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, kind)
	}
}

func TestServiceSendRejectsNonMember(t *testing.T) {
	t.Parallel()
	convRepo := newFakeConversationRepo()
	convSvc := conversation.NewService(convRepo)
	svc := NewService(newFakeRepository(), convSvc, 2000)

	_, err := svc.Send(context.Background(), SendParams{
		ConversationID: convRepo.conv.ID, SenderID: uuid.New(), Type: TypeText, Content: ptr("hi"),
	})
	wantAPIErr(t, err, apierr.KindForbidden)
}

func TestServiceSendRejectsBadPayload(t *testing.T) {
	t.Parallel()
	sender := uuid.New()
	convRepo := newFakeConversationRepo(sender)
	convSvc := conversation.NewService(convRepo)
	svc := NewService(newFakeRepository(), convSvc, 2000)

	_, err := svc.Send(context.Background(), SendParams{
		ConversationID: convRepo.conv.ID, SenderID: sender, Type: TypeText,
	})
	wantAPIErr(t, err, apierr.KindBadRequest)
}

func TestServiceSendSuccess(t *testing.T) {
	t.Parallel()
	sender := uuid.New()
	convRepo := newFakeConversationRepo(sender)
	convSvc := conversation.NewService(convRepo)
	repo := newFakeRepository()
	svc := NewService(repo, convSvc, 2000)

	msg, err := svc.Send(context.Background(), SendParams{
		ConversationID: convRepo.conv.ID, SenderID: sender, Type: TypeText, Content: ptr("hi"),
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.SenderID != sender {
		t.Errorf("SenderID = %v, want %v", msg.SenderID, sender)
	}
}

func TestServiceMarkReadReturnsOnlyChanged(t *testing.T) {
	t.Parallel()
	sender := uuid.New()
	convRepo := newFakeConversationRepo(sender)
	convSvc := conversation.NewService(convRepo)
	repo := newFakeRepository()
	svc := NewService(repo, convSvc, 2000)
	ctx := context.Background()

	msg, err := svc.Send(ctx, SendParams{ConversationID: convRepo.conv.ID, SenderID: sender, Type: TypeText, Content: ptr("hi")})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	updated, err := svc.MarkRead(ctx, convRepo.conv.ID, sender, []uuid.UUID{msg.ID})
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if len(updated) != 1 || updated[0] != msg.ID {
		t.Errorf("MarkRead() = %v, want [%v]", updated, msg.ID)
	}

	updated, err = svc.MarkRead(ctx, convRepo.conv.ID, sender, []uuid.UUID{msg.ID})
	if err != nil {
		t.Fatalf("MarkRead() second call error = %v", err)
	}
	if len(updated) != 0 {
		t.Errorf("MarkRead() second call = %v, want empty (already read)", updated)
	}
}
