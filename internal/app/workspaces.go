package app

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"huddle/api/internal/rbac"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

const joinCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func newJoinCode() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	code := make([]byte, 6)
	for i, b := range buf {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code)
}

func workspaceJSON(workspace store.Workspace) map[string]any {
	return map[string]any{
		"id":        workspace.ID,
		"name":      workspace.Name,
		"userId":    workspace.UserID,
		"joinCode":  workspace.JoinCode,
		"createdAt": workspace.CreatedAt.Format(time.RFC3339),
	}
}

func memberJSON(member store.Member) map[string]any {
	return map[string]any{
		"id":          member.ID,
		"workspaceId": member.WorkspaceID,
		"userId":      member.UserID,
		"role":        member.Role,
		"userName":    member.UserName,
		"userEmail":   member.UserEmail,
	}
}

func channelJSON(channel store.Channel) map[string]any {
	return map[string]any{
		"id":          channel.ID,
		"workspaceId": channel.WorkspaceID,
		"name":        channel.Name,
		"createdAt":   channel.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Service) CreateWorkspace(ctx context.Context, session Session, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}

	workspace := store.Workspace{
		ID:       util.NewID("ws"),
		Name:     name,
		UserID:   session.UserID,
		JoinCode: newJoinCode(),
	}
	owner := store.Member{
		ID:          util.NewID("mem"),
		WorkspaceID: workspace.ID,
		UserID:      session.UserID,
		Role:        string(rbac.RoleAdmin),
	}
	if err := s.store.InsertWorkspace(ctx, workspace, owner); err != nil {
		return nil, err
	}
	return workspaceJSON(workspace), nil
}

func (s *Service) ListWorkspaces(ctx context.Context, session Session) ([]map[string]any, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		item := workspaceJSON(workspace)
		// The join code is admin-facing; plain members see the workspace
		// without it.
		member, err := s.memberFor(ctx, workspace.ID, session.UserID)
		if err != nil {
			return nil, err
		}
		if member == nil || !rbac.IsAdmin(rbac.Role(member.Role)) {
			delete(item, "joinCode")
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) GetWorkspace(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	item := workspaceJSON(workspace)
	if !rbac.IsAdmin(rbac.Role(member.Role)) {
		delete(item, "joinCode")
	}
	return item, nil
}

// WorkspaceInfo is the pre-join view: name only, no membership required.
func (s *Service) WorkspaceInfo(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":       workspace.ID,
		"name":     workspace.Name,
		"isMember": member != nil,
	}, nil
}

func (s *Service) RenameWorkspace(ctx context.Context, session Session, workspaceID, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if _, err := s.requireAdmin(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateWorkspaceName(ctx, workspaceID, name); err != nil {
		return nil, err
	}
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return workspaceJSON(workspace), nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, session Session, workspaceID string) error {
	if _, err := s.requireAdmin(ctx, workspaceID, session.UserID); err != nil {
		return err
	}
	return s.store.DeleteWorkspace(ctx, workspaceID)
}

func (s *Service) RotateJoinCode(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	if _, err := s.requireAdmin(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	code := newJoinCode()
	if err := s.store.UpdateWorkspaceJoinCode(ctx, workspaceID, code); err != nil {
		return nil, err
	}
	return map[string]any{"workspaceId": workspaceID, "joinCode": code}, nil
}

func (s *Service) JoinWorkspace(ctx context.Context, session Session, workspaceID, joinCode string) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(strings.TrimSpace(joinCode)) != workspace.JoinCode {
		return nil, validationError("invalid join code")
	}
	existing, err := s.memberFor(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflictError("ALREADY_MEMBER", "Already a member of this workspace", nil)
	}
	member := store.Member{
		ID:          util.NewID("mem"),
		WorkspaceID: workspaceID,
		UserID:      session.UserID,
		Role:        string(rbac.RoleMember),
	}
	if err := s.store.InsertMember(ctx, member); err != nil {
		return nil, err
	}
	member.UserName = session.UserName
	member.UserEmail = session.UserEmail
	return memberJSON(member), nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, workspaceID string) ([]map[string]any, error) {
	if _, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, memberJSON(member))
	}
	return items, nil
}

func (s *Service) CurrentMember(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	member, err := s.memberFor(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	return memberJSON(*member), nil
}

func (s *Service) GetMemberProfile(ctx context.Context, session Session, memberID string) (map[string]any, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, member.WorkspaceID, session.UserID); err != nil {
		// A viewer outside the workspace learns nothing, not even existence.
		return nil, errNotFound
	}
	return memberJSON(member), nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, session Session, memberID, role string) (map[string]any, error) {
	target, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAdmin(ctx, target.WorkspaceID, session.UserID); err != nil {
		return nil, err
	}
	normalized := rbac.Normalize(role)
	if !rbac.Valid(string(normalized)) {
		return nil, validationError("role must be admin or member")
	}
	if target.Role == string(rbac.RoleAdmin) && normalized != rbac.RoleAdmin {
		admins, err := s.store.CountAdmins(ctx, target.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, conflictError("LAST_ADMIN", "Cannot demote the last admin", nil)
		}
	}
	if err := s.store.UpdateMemberRole(ctx, memberID, string(normalized)); err != nil {
		return nil, err
	}
	target.Role = string(normalized)
	return memberJSON(target), nil
}

// RemoveMember handles both admin removal and self-leave. An admin cannot
// remove themselves, and the last admin can never leave.
func (s *Service) RemoveMember(ctx context.Context, session Session, memberID string) error {
	target, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	caller, err := s.requireMember(ctx, target.WorkspaceID, session.UserID)
	if err != nil {
		return err
	}
	isSelf := caller.ID == target.ID
	if !isSelf && !rbac.IsAdmin(rbac.Role(caller.Role)) {
		return forbiddenError("Admin role required")
	}
	if target.Role == string(rbac.RoleAdmin) {
		if isSelf {
			return conflictError("ADMIN_SELF_REMOVE", "Admins cannot remove themselves", nil)
		}
		admins, err := s.store.CountAdmins(ctx, target.WorkspaceID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return conflictError("LAST_ADMIN", "Cannot remove the last admin", nil)
		}
	}
	// Cascades take the member's messages, reactions, conversations, and
	// room memberships with the row.
	return s.store.DeleteMember(ctx, memberID)
}

func (s *Service) CreateChannel(ctx context.Context, session Session, workspaceID, name string) (map[string]any, error) {
	name = normalizeChannelName(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if _, err := s.requireAdmin(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	channel := store.Channel{
		ID:          util.NewID("ch"),
		WorkspaceID: workspaceID,
		Name:        name,
	}
	if err := s.store.InsertChannel(ctx, channel); err != nil {
		return nil, err
	}
	return channelJSON(channel), nil
}

// normalizeChannelName lowercases and dashes whitespace, matching how the
// client renders channel handles.
func normalizeChannelName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "-")
}

func (s *Service) ListChannels(ctx context.Context, session Session, workspaceID string) ([]map[string]any, error) {
	if _, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	channels, err := s.store.ListChannels(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(channels))
	for _, channel := range channels {
		items = append(items, channelJSON(channel))
	}
	return items, nil
}

func (s *Service) GetChannel(ctx context.Context, session Session, channelID string) (map[string]any, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, channel.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	return channelJSON(channel), nil
}

func (s *Service) RenameChannel(ctx context.Context, session Session, channelID, name string) (map[string]any, error) {
	name = normalizeChannelName(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAdmin(ctx, channel.WorkspaceID, session.UserID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateChannelName(ctx, channelID, name); err != nil {
		return nil, err
	}
	channel.Name = name
	return channelJSON(channel), nil
}

func (s *Service) DeleteChannel(ctx context.Context, session Session, channelID string) error {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if _, err := s.requireAdmin(ctx, channel.WorkspaceID, session.UserID); err != nil {
		return err
	}
	return s.store.DeleteChannel(ctx, channelID)
}

// EnsureConversation returns the direct-message conversation between the
// caller and another member, creating it on first contact. A self
// conversation is allowed; the pair is unordered either way.
func (s *Service) EnsureConversation(ctx context.Context, session Session, workspaceID, otherMemberID string) (map[string]any, error) {
	caller, err := s.requireMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	other, err := s.store.GetMember(ctx, otherMemberID)
	if err != nil {
		return nil, err
	}
	if other.WorkspaceID != workspaceID {
		return nil, errNotFound
	}
	conversation, err := s.store.EnsureConversation(ctx, store.Conversation{
		ID:          util.NewID("conv"),
		WorkspaceID: workspaceID,
		MemberOneID: caller.ID,
		MemberTwoID: other.ID,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          conversation.ID,
		"workspaceId": conversation.WorkspaceID,
		"memberOneId": conversation.MemberOneID,
		"memberTwoId": conversation.MemberTwoID,
	}, nil
}
