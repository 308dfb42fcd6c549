package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/config"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/db/dbtest"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/store"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/ws"
	"gorm.io/gorm"
)

type dispatched struct {
	room    string
	kind    string
	payload interface{}
}

// recorder 记录所有投递，代替 Hub。
type recorder struct {
	mu     sync.Mutex
	events []dispatched
}

func (r *recorder) Dispatch(roomID, kind string, payload interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, dispatched{roomID, kind, payload})
	return 1
}

func (r *recorder) all() []dispatched {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatched(nil), r.events...)
}

type fixture struct {
	db            *gorm.DB
	rec           *recorder
	users         *UserService
	conversations *ConversationService
	messages      *MessageService
	notifications *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	rec := &recorder{}
	cfg := config.Config{JWTSecret: "test-secret", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7}
	convs := NewConversationService(gdb, store.NewGormParticipants(gdb))
	return &fixture{
		db:            gdb,
		rec:           rec,
		users:         NewUserService(gdb, cfg),
		conversations: convs,
		messages:      NewMessageService(gdb, convs, rec),
		notifications: NewNotificationService(gdb, rec),
	}
}

func (f *fixture) register(t *testing.T, name string) string {
	t.Helper()
	res, err := f.users.Register(context.Background(), name, "password123")
	if err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
	return res.ID
}

func TestUserService_RegisterLoginRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice")
	if id == "" {
		t.Fatal("Register() returned empty id")
	}
	if _, err := f.users.Register(ctx, "alice", "other-pass"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate Register() error = %v, want ErrUsernameTaken", err)
	}

	if _, err := f.users.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong password) error = %v", err)
	}
	if _, err := f.users.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(unknown user) error = %v", err)
	}
	login, err := f.users.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" || login.User.ID != id {
		t.Errorf("Login() = %+v", login)
	}

	pair, err := f.users.RefreshTokens(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens() error = %v", err)
	}
	if pair.RefreshToken == login.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if _, err := f.users.RefreshTokens(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("reusing revoked refresh token error = %v, want ErrInvalidCredentials", err)
	}
}

func TestConversationService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	conv, err := f.conversations.Create(ctx, alice, []string{bob, bob, alice})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(conv.Participants) != 2 || conv.Participants[0] != alice {
		t.Errorf("Participants = %v", conv.Participants)
	}
	if _, err := f.conversations.Create(ctx, alice, []string{"ghost"}); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("Create(unknown) error = %v, want ErrUnknownParticipant", err)
	}

	list, err := f.conversations.ListForUser(ctx, bob, 0)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != conv.ID || len(list[0].Participants) != 2 {
		t.Errorf("ListForUser() = %+v", list)
	}

	carol := f.register(t, "carol")
	list, err = f.conversations.ListForUser(ctx, carol, 0)
	if err != nil || len(list) != 0 {
		t.Errorf("ListForUser(carol) = %v, %v", list, err)
	}

	tests := []struct {
		name string
		user string
		conv string
		want error
	}{
		{"participant", bob, conv.ID, nil},
		{"outsider", carol, conv.ID, ErrNotParticipant},
		{"missing conversation", alice, "c404", ErrConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.conversations.Authorize(ctx, tt.user, tt.conv); !errors.Is(err, tt.want) {
				t.Errorf("Authorize() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMessageService_SendDispatchesToConversationRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")
	conv, err := f.conversations.Create(ctx, alice, []string{bob})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	msg, err := f.messages.Send(ctx, bob, conv.ID, "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Username != "bob" || msg.Content != "hello" {
		t.Errorf("Send() = %+v", msg)
	}
	events := f.rec.all()
	if len(events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(events))
	}
	if events[0].room != ws.ConversationRoom(conv.ID) || events[0].kind != ws.EventChatMessage {
		t.Errorf("event = %+v", events[0])
	}

	if _, err := f.messages.Send(ctx, carol, conv.ID, "let me in"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Send(outsider) error = %v, want ErrNotParticipant", err)
	}
	if len(f.rec.all()) != 1 {
		t.Error("outsider message was dispatched")
	}
}

func TestMessageService_ListByConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	conv, _ := f.conversations.Create(ctx, alice, nil)

	var ids []uint
	for _, text := range []string{"one", "two", "three", "four"} {
		m, err := f.messages.Send(ctx, alice, conv.ID, text)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		ids = append(ids, m.ID)
	}

	got, err := f.messages.ListByConversation(ctx, alice, conv.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListByConversation() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "three" || got[1].Content != "four" {
		t.Errorf("latest page = %+v", got)
	}
	got, err = f.messages.ListByConversation(ctx, alice, conv.ID, 10, ids[2])
	if err != nil {
		t.Fatalf("ListByConversation() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "one" {
		t.Errorf("page before %d = %+v", ids[2], got)
	}

	bob := f.register(t, "bob")
	if _, err := f.messages.ListByConversation(ctx, bob, conv.ID, 10, 0); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("ListByConversation(outsider) error = %v", err)
	}
}

func TestNotificationService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	n, err := f.notifications.Create(ctx, alice, "job.posted", "Backend role at Acme")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	events := f.rec.all()
	if len(events) != 1 || events[0].room != ws.UserRoom(alice) || events[0].kind != ws.EventNotification {
		t.Fatalf("events = %+v", events)
	}
	if _, err := f.notifications.Create(ctx, "ghost", "x", "y"); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("Create(ghost) error = %v", err)
	}

	affected, err := f.notifications.MarkRead(ctx, alice, []uint{n.ID})
	if err != nil || affected != 1 {
		t.Fatalf("MarkRead() = %d, %v", affected, err)
	}
	unread, err := f.notifications.List(ctx, alice, 0, true)
	if err != nil || len(unread) != 0 {
		t.Errorf("List(unread) = %v, %v", unread, err)
	}
	all, err := f.notifications.List(ctx, alice, 0, false)
	if err != nil || len(all) != 1 || all[0].ReadAt == nil {
		t.Errorf("List(all) = %+v, %v", all, err)
	}
}
