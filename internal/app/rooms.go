package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"huddle/api/internal/rbac"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

const roomMessagePageSize = 100

type CreateRoomInput struct {
	Name        string `json:"name"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
	MaxMembers  *int   `json:"maxMembers"`
}

func roomJSON(room store.DiscussionRoom) map[string]any {
	item := map[string]any{
		"id":          room.ID,
		"workspaceId": room.WorkspaceID,
		"name":        room.Name,
		"topic":       room.Topic,
		"createdBy":   room.CreatedBy,
		"creatorName": room.CreatorName,
		"isPrivate":   room.IsPrivate,
		"memberCount": room.MemberCount,
		"isMember":    room.IsMember,
		"createdAt":   room.CreatedAt.Format(time.RFC3339),
	}
	if room.Description != nil {
		item["description"] = *room.Description
	}
	if room.MaxMembers != nil {
		item["maxMembers"] = *room.MaxMembers
	}
	return item
}

func roomMessageJSON(message store.RoomMessage) map[string]any {
	item := map[string]any{
		"id":         message.ID,
		"roomId":     message.RoomID,
		"memberId":   message.MemberID,
		"body":       message.Body,
		"authorName": message.AuthorName,
		"createdAt":  message.CreatedAt.Format(time.RFC3339),
	}
	if message.Image != nil {
		item["image"] = *message.Image
	}
	if message.UpdatedAt != nil {
		item["updatedAt"] = message.UpdatedAt.Format(time.RFC3339)
	}
	return item
}

func (s *Service) CreateRoom(ctx context.Context, session Session, workspaceID string, input CreateRoomInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	topic := strings.TrimSpace(input.Topic)
	if name == "" || topic == "" {
		return nil, validationError("name and topic are required")
	}
	if input.MaxMembers != nil && *input.MaxMembers < 2 {
		return nil, validationError("maxMembers must be at least 2")
	}
	member, err := s.requireMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}

	room := store.DiscussionRoom{
		ID:          util.NewID("room"),
		WorkspaceID: workspaceID,
		Name:        name,
		Topic:       topic,
		CreatedBy:   member.ID,
		IsPrivate:   input.IsPrivate,
		MaxMembers:  input.MaxMembers,
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		room.Description = &description
	}
	if err := s.store.InsertRoom(ctx, room, util.NewID("rmb")); err != nil {
		return nil, err
	}
	created, err := s.store.GetRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	created.IsMember = true
	return roomJSON(created), nil
}

func (s *Service) ListRooms(ctx context.Context, session Session, workspaceID string) ([]map[string]any, error) {
	member, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	rooms, err := s.store.ListRooms(ctx, workspaceID, member.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, roomJSON(room))
	}
	return items, nil
}

// roomForMember loads a room and the caller's workspace membership.
func (s *Service) roomForMember(ctx context.Context, session Session, roomID string) (store.DiscussionRoom, store.Member, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.DiscussionRoom{}, store.Member{}, err
	}
	member, err := s.requireMember(ctx, room.WorkspaceID, session.UserID)
	if err != nil {
		return store.DiscussionRoom{}, store.Member{}, err
	}
	return room, member, nil
}

func (s *Service) GetRoom(ctx context.Context, session Session, roomID string) (map[string]any, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, room.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	membership, err := s.store.FindRoomMember(ctx, roomID, member.ID)
	if err != nil {
		return nil, err
	}
	room.IsMember = membership != nil
	return roomJSON(room), nil
}

// JoinRoom is idempotent: rejoining returns the existing membership.
// Capacity is enforced only here, under a row lock in the store.
func (s *Service) JoinRoom(ctx context.Context, session Session, roomID string) (map[string]any, error) {
	_, member, err := s.roomForMember(ctx, session, roomID)
	if err != nil {
		return nil, err
	}
	membershipID, err := s.store.JoinRoom(ctx, util.NewID("rmb"), roomID, member.ID)
	if errors.Is(err, store.ErrRoomFull) {
		return nil, conflictError("ROOM_FULL", "Room is at capacity", nil)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"roomId":       roomID,
		"memberId":     member.ID,
		"membershipId": membershipID,
	}, nil
}

func (s *Service) DeleteRoom(ctx context.Context, session Session, roomID string) error {
	room, member, err := s.roomForMember(ctx, session, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return forbiddenError("Only the creator or an admin can delete a room")
	}
	return s.store.DeleteRoom(ctx, roomID)
}

func (s *Service) CreateRoomMessage(ctx context.Context, session Session, roomID, body, image string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" && image == "" {
		return nil, validationError("body or image is required")
	}
	_, member, err := s.roomForMember(ctx, session, roomID)
	if err != nil {
		return nil, err
	}
	membership, err := s.store.FindRoomMember(ctx, roomID, member.ID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, forbiddenError("Join the room before posting")
	}

	message := store.RoomMessage{
		ID:       util.NewID("rmsg"),
		RoomID:   roomID,
		MemberID: member.ID,
		Body:     body,
	}
	if image != "" {
		message.Image = &image
	}
	if err := s.store.InsertRoomMessage(ctx, message); err != nil {
		return nil, err
	}
	message.AuthorName = member.UserName
	message.CreatedAt = time.Now()
	return roomMessageJSON(message), nil
}

// ListRoomMessages returns the latest page of 100, oldest first.
func (s *Service) ListRoomMessages(ctx context.Context, session Session, roomID string) ([]map[string]any, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, room.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	messages, err := s.store.ListRoomMessages(ctx, roomID, roomMessagePageSize)
	if err != nil {
		return nil, err
	}
	// Newest first from the store; flip for display.
	items := make([]map[string]any, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		items = append(items, roomMessageJSON(messages[i]))
	}
	return items, nil
}
