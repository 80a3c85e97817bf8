package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/conversation"
)

// fakeConversationAPIRepo is an in-memory conversation.Repository, separate from message_test.go's
// fakeMessageConversationRepo (which only ever backs a single pre-seeded conversation): this one supports
// Create/FindDirect/ListForUser against an arbitrary number of conversations, as the conversation REST surface
// exercises all three.
type fakeConversationAPIRepo struct {
	mu      sync.Mutex
	convs   map[uuid.UUID]*conversation.Conversation
	members map[uuid.UUID][]conversation.Member
	users   map[uuid.UUID]bool
}

func newFakeConversationAPIRepo(knownUsers ...uuid.UUID) *fakeConversationAPIRepo {
	f := &fakeConversationAPIRepo{
		convs: map[uuid.UUID]*conversation.Conversation{}, members: map[uuid.UUID][]conversation.Member{},
		users: map[uuid.UUID]bool{},
	}
	for _, u := range knownUsers {
		f.users[u] = true
	}
	return f
}

func (f *fakeConversationAPIRepo) Create(ctx context.Context, actorID uuid.UUID, memberIDs []uuid.UUID, isGroup bool, name *string) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	conv := &conversation.Conversation{ID: uuid.New(), IsGroup: isGroup, Name: name, CreatedAt: now, UpdatedAt: now}
	f.convs[conv.ID] = conv

	role := conversation.RoleMember
	if isGroup {
		role = conversation.RoleAdmin
	}
	members := []conversation.Member{{ConversationID: conv.ID, UserID: actorID, Role: role, JoinedAt: now}}
	for _, id := range memberIDs {
		members = append(members, conversation.Member{ConversationID: conv.ID, UserID: id, Role: conversation.RoleMember, JoinedAt: now})
	}
	f.members[conv.ID] = members
	return conv, nil
}

func (f *fakeConversationAPIRepo) FindDirect(ctx context.Context, a, b uuid.UUID) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, conv := range f.convs {
		if conv.IsGroup {
			continue
		}
		members := f.members[id]
		if len(members) != 2 {
			continue
		}
		has := map[uuid.UUID]bool{members[0].UserID: true, members[1].UserID: true}
		if has[a] && has[b] {
			return conv, nil
		}
	}
	return nil, nil
}

func (f *fakeConversationAPIRepo) Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return conv, nil
}

func (f *fakeConversationAPIRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]conversation.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[conversationID], nil
}

func (f *fakeConversationAPIRepo) ListForUser(ctx context.Context, actorID uuid.UUID) ([]conversation.WithLastMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []conversation.WithLastMessage
	for id, conv := range f.convs {
		for _, m := range f.members[id] {
			if m.UserID == actorID {
				out = append(out, conversation.WithLastMessage{Conversation: *conv, Members: f.members[id]})
				break
			}
		}
	}
	return out, nil
}

func (f *fakeConversationAPIRepo) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[conversationID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeConversationAPIRepo) UsersExist(ctx context.Context, ids []uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if !f.users[id] {
			return false, nil
		}
	}
	return true, nil
}

func newConversationTestApp(repo *fakeConversationAPIRepo) *fiber.App {
	svc := conversation.NewService(repo)
	handler := NewConversationHandler(svc, zerolog.Nop())
	app := fiber.New()
	app.Use(auth.RequireAuth(authTestSecret, authTestIssuer, func(ctx context.Context, id uuid.UUID) (bool, error) {
		return true, nil
	}))
	app.Post("/conversations", handler.Create)
	app.Get("/conversations", handler.List)
	app.Get("/conversations/:id", handler.Get)
	return app
}

func decodeConversationBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestCreateDirectConversation(t *testing.T) {
	t.Parallel()
	actor, other := uuid.New(), uuid.New()
	repo := newFakeConversationAPIRepo(actor, other)
	app := newConversationTestApp(repo)

	reqBody, _ := json.Marshal(createConversationRequest{UserIDs: []string{other.String()}})
	req := authedRequest(t, http.MethodPost, "/conversations", reqBody, actor)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}
	data := decodeConversationBody(t, resp)["data"].(map[string]any)
	if data["isGroup"].(bool) {
		t.Error("isGroup = true, want false for direct conversation")
	}
}

func TestCreateGroupConversationRequiresName(t *testing.T) {
	t.Parallel()
	actor, b, c := uuid.New(), uuid.New(), uuid.New()
	repo := newFakeConversationAPIRepo(actor, b, c)
	app := newConversationTestApp(repo)

	reqBody, _ := json.Marshal(createConversationRequest{UserIDs: []string{b.String(), c.String()}, IsGroup: true})
	req := authedRequest(t, http.MethodPost, "/conversations", reqBody, actor)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

func TestCreateConversationRejectsUnknownUser(t *testing.T) {
	t.Parallel()
	actor := uuid.New()
	repo := newFakeConversationAPIRepo(actor)
	app := newConversationTestApp(repo)

	ghost := uuid.New()
	reqBody, _ := json.Marshal(createConversationRequest{UserIDs: []string{ghost.String()}})
	req := authedRequest(t, http.MethodPost, "/conversations", reqBody, actor)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}

func TestListConversationsReturnsOnlyCallersRooms(t *testing.T) {
	t.Parallel()
	actor, other, stranger := uuid.New(), uuid.New(), uuid.New()
	repo := newFakeConversationAPIRepo(actor, other, stranger)
	app := newConversationTestApp(repo)

	createBody, _ := json.Marshal(createConversationRequest{UserIDs: []string{other.String()}})
	createReq := authedRequest(t, http.MethodPost, "/conversations", createBody, actor)
	createResp, err := app.Test(createReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = createResp.Body.Close()

	req := authedRequest(t, http.MethodGet, "/conversations", nil, actor)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	data := decodeConversationBody(t, resp)["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(data))
	}

	strangerReq := authedRequest(t, http.MethodGet, "/conversations", nil, stranger)
	strangerResp, err := app.Test(strangerReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = strangerResp.Body.Close() }()
	strangerData := decodeConversationBody(t, strangerResp)["data"].([]any)
	if len(strangerData) != 0 {
		t.Errorf("len(strangerData) = %d, want 0", len(strangerData))
	}
}

func TestGetConversationDistinguishesNotFoundAndForbidden(t *testing.T) {
	t.Parallel()
	actor, other, stranger := uuid.New(), uuid.New(), uuid.New()
	repo := newFakeConversationAPIRepo(actor, other, stranger)
	app := newConversationTestApp(repo)

	createBody, _ := json.Marshal(createConversationRequest{UserIDs: []string{other.String()}})
	createReq := authedRequest(t, http.MethodPost, "/conversations", createBody, actor)
	createResp, err := app.Test(createReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	created := decodeConversationBody(t, createResp)["data"].(map[string]any)
	_ = createResp.Body.Close()
	convID := created["id"].(string)

	okReq := authedRequest(t, http.MethodGet, "/conversations/"+convID, nil, actor)
	okResp, err := app.Test(okReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = okResp.Body.Close() }()
	if okResp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d", okResp.StatusCode, fiber.StatusOK)
	}

	forbiddenReq := authedRequest(t, http.MethodGet, "/conversations/"+convID, nil, stranger)
	forbiddenResp, err := app.Test(forbiddenReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = forbiddenResp.Body.Close() }()
	if forbiddenResp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, want %d", forbiddenResp.StatusCode, fiber.StatusForbidden)
	}

	missingReq := authedRequest(t, http.MethodGet, "/conversations/"+uuid.New().String(), nil, actor)
	missingResp, err := app.Test(missingReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = missingResp.Body.Close() }()
	if missingResp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want %d", missingResp.StatusCode, fiber.StatusNotFound)
	}
}
