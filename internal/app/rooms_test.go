package app

import (
	"context"
	"errors"
	"testing"

	"huddle/api/internal/store"
)

func roomTestStore() *fakeStore {
	return &fakeStore{
		getRoomFn: func(_ context.Context, roomID string) (store.DiscussionRoom, error) {
			return store.DiscussionRoom{
				ID:          roomID,
				WorkspaceID: "ws_1",
				Name:        "Design Critique",
				Topic:       "Weekly reviews",
				CreatedBy:   "mbr_1",
			}, nil
		},
	}
}

func TestCreateRoomRequiresNameAndTopic(t *testing.T) {
	svc, _ := newTestService(roomTestStore())
	session := Session{UserID: "usr_1"}

	cases := []CreateRoomInput{
		{Topic: "t"},
		{Name: "n"},
	}
	for _, input := range cases {
		_, err := svc.CreateRoom(context.Background(), session, "ws_1", input)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("input %+v: expected VALIDATION_ERROR, got %v", input, err)
		}
	}
}

func TestCreateRoomRejectsTinyCapacity(t *testing.T) {
	svc, _ := newTestService(roomTestStore())
	one := 1

	_, err := svc.CreateRoom(context.Background(), Session{UserID: "usr_1"}, "ws_1", CreateRoomInput{
		Name:       "Design Critique",
		Topic:      "Weekly reviews",
		MaxMembers: &one,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for maxMembers 1, got %v", err)
	}
}

func TestCreateRoomEnrollsCreator(t *testing.T) {
	fs := roomTestStore()
	var creatorMembership string
	fs.insertRoomFn = func(_ context.Context, room store.DiscussionRoom, creatorMembershipID string) error {
		creatorMembership = creatorMembershipID
		return nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.CreateRoom(context.Background(), Session{UserID: "usr_1"}, "ws_1", CreateRoomInput{
		Name:  "Design Critique",
		Topic: "Weekly reviews",
	})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if creatorMembership == "" {
		t.Fatalf("expected creator to be enrolled on creation")
	}
	if payload["isMember"] != true {
		t.Fatalf("expected creator payload to show membership")
	}
}

func TestJoinRoomReportsFullRoom(t *testing.T) {
	fs := roomTestStore()
	fs.joinRoomFn = func(context.Context, string, string, string) (string, error) {
		return "", store.ErrRoomFull
	}
	svc, _ := newTestService(fs)

	_, err := svc.JoinRoom(context.Background(), Session{UserID: "usr_1"}, "room_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 409 || domainErr.Code != "ROOM_FULL" {
		t.Fatalf("expected 409 ROOM_FULL, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestJoinRoomReturnsExistingMembership(t *testing.T) {
	fs := roomTestStore()
	fs.joinRoomFn = func(_ context.Context, membershipID, _, _ string) (string, error) {
		// The store resolves a rejoin to the existing row.
		return "rmb_existing", nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.JoinRoom(context.Background(), Session{UserID: "usr_1"}, "room_1")
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	if payload["membershipId"] != "rmb_existing" {
		t.Fatalf("expected existing membership id, got %v", payload["membershipId"])
	}
}

func TestCreateRoomMessageRequiresRoomMembership(t *testing.T) {
	svc, _ := newTestService(roomTestStore())

	_, err := svc.CreateRoomMessage(context.Background(), Session{UserID: "usr_1"}, "room_1", "hello", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for non-member post, got %v", err)
	}
}

func TestCreateRoomMessagePostsForMembers(t *testing.T) {
	fs := roomTestStore()
	fs.findRoomMemberFn = func(_ context.Context, roomID, memberID string) (*store.RoomMember, error) {
		return &store.RoomMember{ID: "rmb_1", RoomID: roomID, MemberID: memberID}, nil
	}
	var inserted store.RoomMessage
	fs.insertRoomMessageFn = func(_ context.Context, message store.RoomMessage) error {
		inserted = message
		return nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.CreateRoomMessage(context.Background(), Session{UserID: "usr_1"}, "room_1", "hello", "")
	if err != nil {
		t.Fatalf("CreateRoomMessage() error = %v", err)
	}
	if inserted.Body != "hello" {
		t.Fatalf("expected body to be stored, got %q", inserted.Body)
	}
	if payload["body"] != "hello" {
		t.Fatalf("expected body in response, got %v", payload["body"])
	}
}

func TestDeleteRoomRequiresCreatorOrAdmin(t *testing.T) {
	fs := roomTestStore()
	fs.findMemberFn = func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
		return &store.Member{ID: "mbr_other", WorkspaceID: workspaceID, UserID: userID, Role: "member"}, nil
	}
	svc, _ := newTestService(fs)

	err := svc.DeleteRoom(context.Background(), Session{UserID: "usr_2"}, "room_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestListRoomMessagesFlipsToAscending(t *testing.T) {
	fs := roomTestStore()
	fs.findRoomMemberFn = func(_ context.Context, roomID, memberID string) (*store.RoomMember, error) {
		return &store.RoomMember{ID: "rmb_1", RoomID: roomID, MemberID: memberID}, nil
	}
	fs.listRoomMessagesFn = func(_ context.Context, roomID string, limit int) ([]store.RoomMessage, error) {
		if limit != roomMessagePageSize {
			t.Fatalf("expected page size %d, got %d", roomMessagePageSize, limit)
		}
		// Newest first from the store.
		return []store.RoomMessage{
			{ID: "rmsg_2", RoomID: roomID, Body: "second"},
			{ID: "rmsg_1", RoomID: roomID, Body: "first"},
		}, nil
	}
	svc, _ := newTestService(fs)

	items, err := svc.ListRoomMessages(context.Background(), Session{UserID: "usr_1"}, "room_1")
	if err != nil {
		t.Fatalf("ListRoomMessages() error = %v", err)
	}
	if len(items) != 2 || items[0]["id"] != "rmsg_1" || items[1]["id"] != "rmsg_2" {
		t.Fatalf("expected oldest first, got %v", items)
	}
}
