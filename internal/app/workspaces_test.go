package app

import (
	"context"
	"errors"
	"testing"

	"huddle/api/internal/store"
)

func TestNewJoinCodeShapeAndVariety(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code := newJoinCode()
		if len(code) != 6 {
			t.Fatalf("expected 6-char code, got %q", code)
		}
		for _, r := range code {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				t.Fatalf("unexpected character %q in join code %q", r, code)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected varied join codes")
	}
}

func TestCreateWorkspaceEnrollsOwnerAsAdmin(t *testing.T) {
	fs := &fakeStore{}
	var owner store.Member
	fs.insertWorkspaceFn = func(_ context.Context, workspace store.Workspace, ownerMember store.Member) error {
		if workspace.JoinCode == "" {
			t.Fatalf("expected a join code on creation")
		}
		owner = ownerMember
		return nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.CreateWorkspace(context.Background(), Session{UserID: "usr_1"}, "  Acme  ")
	if err != nil {
		t.Fatalf("CreateWorkspace() error = %v", err)
	}
	if owner.Role != "admin" || owner.UserID != "usr_1" {
		t.Fatalf("expected owner enrolled as admin, got %+v", owner)
	}
	if payload["name"] != "Acme" {
		t.Fatalf("expected trimmed name, got %v", payload["name"])
	}
}

func TestGetWorkspaceHidesJoinCodeFromPlainMembers(t *testing.T) {
	fs := &fakeStore{
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_1", WorkspaceID: workspaceID, UserID: userID, Role: "member"}, nil
		},
	}
	svc, _ := newTestService(fs)

	payload, err := svc.GetWorkspace(context.Background(), Session{UserID: "usr_1"}, "ws_1")
	if err != nil {
		t.Fatalf("GetWorkspace() error = %v", err)
	}
	if _, leaked := payload["joinCode"]; leaked {
		t.Fatalf("expected joinCode hidden from plain members")
	}
}

func TestGetWorkspaceShowsJoinCodeToAdmins(t *testing.T) {
	fs := &fakeStore{
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_1", WorkspaceID: workspaceID, UserID: userID, Role: "admin"}, nil
		},
	}
	svc, _ := newTestService(fs)

	payload, err := svc.GetWorkspace(context.Background(), Session{UserID: "usr_1"}, "ws_1")
	if err != nil {
		t.Fatalf("GetWorkspace() error = %v", err)
	}
	if payload["joinCode"] != "abc123" {
		t.Fatalf("expected joinCode for admin, got %v", payload["joinCode"])
	}
}

func TestGetWorkspaceHidesExistenceFromOutsiders(t *testing.T) {
	fs := &fakeStore{
		findMemberFn: func(context.Context, string, string) (*store.Member, error) {
			return nil, nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.GetWorkspace(context.Background(), Session{UserID: "usr_1"}, "ws_1")
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected not-found for outsider, got %v", err)
	}
}

func TestWorkspaceInfoIsVisiblePreJoin(t *testing.T) {
	fs := &fakeStore{
		findMemberFn: func(context.Context, string, string) (*store.Member, error) {
			return nil, nil
		},
	}
	svc, _ := newTestService(fs)

	payload, err := svc.WorkspaceInfo(context.Background(), Session{UserID: "usr_1"}, "ws_1")
	if err != nil {
		t.Fatalf("WorkspaceInfo() error = %v", err)
	}
	if payload["name"] != "Acme" || payload["isMember"] != false {
		t.Fatalf("unexpected info payload: %v", payload)
	}
	if _, leaked := payload["joinCode"]; leaked {
		t.Fatalf("info view must not carry the join code")
	}
}

func TestJoinWorkspaceChecksCodeCaseInsensitively(t *testing.T) {
	fs := &fakeStore{
		findMemberFn: func(context.Context, string, string) (*store.Member, error) {
			return nil, nil
		},
	}
	var inserted store.Member
	fs.insertMemberFn = func(_ context.Context, member store.Member) error {
		inserted = member
		return nil
	}
	svc, _ := newTestService(fs)

	if _, err := svc.JoinWorkspace(context.Background(), Session{UserID: "usr_2"}, "ws_1", "  ABC123 "); err != nil {
		t.Fatalf("JoinWorkspace() error = %v", err)
	}
	if inserted.Role != "member" {
		t.Fatalf("expected new joiner to be a plain member, got %q", inserted.Role)
	}

	_, err := svc.JoinWorkspace(context.Background(), Session{UserID: "usr_2"}, "ws_1", "wrong1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for bad code, got %v", err)
	}
}

func TestJoinWorkspaceRejectsRepeatJoin(t *testing.T) {
	fs := &fakeStore{}
	svc, _ := newTestService(fs)

	_, err := svc.JoinWorkspace(context.Background(), Session{UserID: "usr_1"}, "ws_1", "abc123")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "ALREADY_MEMBER" {
		t.Fatalf("expected ALREADY_MEMBER, got %v", err)
	}
}

func TestUpdateMemberRoleProtectsLastAdmin(t *testing.T) {
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_1", Role: "admin"}, nil
		},
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_caller", WorkspaceID: workspaceID, UserID: userID, Role: "admin"}, nil
		},
		countAdminsFn: func(context.Context, string) (int, error) {
			return 1, nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.UpdateMemberRole(context.Background(), Session{UserID: "usr_1"}, "mbr_target", "member")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "LAST_ADMIN" {
		t.Fatalf("expected LAST_ADMIN, got %v", err)
	}
}

func TestRemoveMemberBlocksAdminSelfRemoval(t *testing.T) {
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_1", UserID: "usr_1", Role: "admin"}, nil
		},
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_target", WorkspaceID: workspaceID, UserID: userID, Role: "admin"}, nil
		},
	}
	svc, _ := newTestService(fs)

	err := svc.RemoveMember(context.Background(), Session{UserID: "usr_1"}, "mbr_target")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "ADMIN_SELF_REMOVE" {
		t.Fatalf("expected ADMIN_SELF_REMOVE, got %v", err)
	}
}

func TestRemoveMemberAllowsSelfLeaveForPlainMember(t *testing.T) {
	removed := false
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_1", UserID: "usr_1", Role: "member"}, nil
		},
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_target", WorkspaceID: workspaceID, UserID: userID, Role: "member"}, nil
		},
		deleteMemberFn: func(context.Context, string) error {
			removed = true
			return nil
		},
	}
	svc, _ := newTestService(fs)

	if err := svc.RemoveMember(context.Background(), Session{UserID: "usr_1"}, "mbr_target"); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if !removed {
		t.Fatalf("expected member deletion")
	}
}

func TestRemoveMemberRejectsNonAdminRemovingOthers(t *testing.T) {
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_1", UserID: "usr_other", Role: "member"}, nil
		},
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_caller", WorkspaceID: workspaceID, UserID: userID, Role: "member"}, nil
		},
	}
	svc, _ := newTestService(fs)

	err := svc.RemoveMember(context.Background(), Session{UserID: "usr_1"}, "mbr_target")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestNormalizeChannelName(t *testing.T) {
	cases := map[string]string{
		"General":          "general",
		"  Design  Team  ": "design-team",
		"ops":              "ops",
		"   ":              "",
	}
	for input, want := range cases {
		if got := normalizeChannelName(input); got != want {
			t.Fatalf("normalizeChannelName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCreateChannelIsAdminOnly(t *testing.T) {
	fs := &fakeStore{
		findMemberFn: func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
			return &store.Member{ID: "mbr_1", WorkspaceID: workspaceID, UserID: userID, Role: "admin"}, nil
		},
	}
	var inserted store.Channel
	fs.insertChannelFn = func(_ context.Context, channel store.Channel) error {
		inserted = channel
		return nil
	}
	svc, _ := newTestService(fs)

	if _, err := svc.CreateChannel(context.Background(), Session{UserID: "usr_1"}, "ws_1", "Design Team"); err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if inserted.Name != "design-team" {
		t.Fatalf("expected normalized channel name, got %q", inserted.Name)
	}
}

func TestGetMemberProfileHidesExistenceFromOutsiders(t *testing.T) {
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_1", UserID: "usr_other", Role: "member"}, nil
		},
		findMemberFn: func(context.Context, string, string) (*store.Member, error) {
			return nil, nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.GetMemberProfile(context.Background(), Session{UserID: "usr_1"}, "mbr_target")
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected not-found for outside viewer, got %v", err)
	}
}

func TestEnsureConversationRejectsCrossWorkspaceMember(t *testing.T) {
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_other"}, nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.EnsureConversation(context.Background(), Session{UserID: "usr_1"}, "ws_1", "mbr_elsewhere")
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestEnsureConversationAllowsSelf(t *testing.T) {
	fs := &fakeStore{
		getMemberFn: func(_ context.Context, memberID string) (store.Member, error) {
			return store.Member{ID: memberID, WorkspaceID: "ws_1"}, nil
		},
		ensureConversationFn: func(_ context.Context, conversation store.Conversation) (store.Conversation, error) {
			return conversation, nil
		},
	}
	svc, _ := newTestService(fs)

	payload, err := svc.EnsureConversation(context.Background(), Session{UserID: "usr_1"}, "ws_1", "mbr_1")
	if err != nil {
		t.Fatalf("EnsureConversation() error = %v", err)
	}
	if payload["memberOneId"] != "mbr_1" || payload["memberTwoId"] != "mbr_1" {
		t.Fatalf("expected self conversation pair, got %v", payload)
	}
}
