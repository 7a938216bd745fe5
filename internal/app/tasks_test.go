package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"huddle/api/internal/store"
)

func taskTestStore(current string) *fakeStore {
	return &fakeStore{
		getTaskFn: func(_ context.Context, taskID string) (store.Task, error) {
			return store.Task{
				ID:          taskID,
				WorkspaceID: "ws_1",
				Title:       "Ship it",
				CreatedBy:   "mbr_1",
				Status:      current,
				Priority:    "medium",
			}, nil
		},
	}
}

func TestTransitionTaskMatrix(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{TaskStatusNotStarted, TaskStatusInProgress, true},
		{TaskStatusNotStarted, TaskStatusCompleted, true},
		{TaskStatusNotStarted, TaskStatusDelayed, false},
		{TaskStatusInProgress, TaskStatusNotStarted, true},
		{TaskStatusInProgress, TaskStatusCompleted, true},
		{TaskStatusInProgress, TaskStatusDelayed, true},
		{TaskStatusDelayed, TaskStatusInProgress, true},
		{TaskStatusDelayed, TaskStatusCompleted, true},
		{TaskStatusDelayed, TaskStatusNotStarted, false},
		{TaskStatusCompleted, TaskStatusNotStarted, true},
		{TaskStatusCompleted, TaskStatusInProgress, true},
		{TaskStatusCompleted, TaskStatusDelayed, false},
	}

	for _, tc := range cases {
		svc, _ := newTestService(taskTestStore(tc.from))
		_, err := svc.TransitionTask(context.Background(), Session{UserID: "usr_1"}, "task_1", tc.to)
		if tc.allowed {
			if err != nil {
				t.Fatalf("%s -> %s: expected success, got %v", tc.from, tc.to, err)
			}
			continue
		}
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			t.Fatalf("%s -> %s: expected DomainError, got %v", tc.from, tc.to, err)
		}
		if domainErr.Code != "INVALID_TRANSITION" {
			t.Fatalf("%s -> %s: expected INVALID_TRANSITION, got %s", tc.from, tc.to, domainErr.Code)
		}
		details, ok := domainErr.Details.(map[string]any)
		if !ok || details["from"] != tc.from || details["to"] != tc.to {
			t.Fatalf("%s -> %s: unexpected details %v", tc.from, tc.to, domainErr.Details)
		}
	}
}

func TestTransitionTaskSameStatusIsNoOp(t *testing.T) {
	fs := taskTestStore(TaskStatusInProgress)
	fs.updateTaskStatusFn = func(context.Context, string, string, *time.Time, bool) error {
		t.Fatalf("expected no write for a same-status transition")
		return nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.TransitionTask(context.Background(), Session{UserID: "usr_1"}, "task_1", TaskStatusInProgress)
	if err != nil {
		t.Fatalf("TransitionTask() error = %v", err)
	}
	if payload["status"] != TaskStatusInProgress {
		t.Fatalf("expected current status back, got %v", payload["status"])
	}
}

func TestTransitionTaskRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService(taskTestStore(TaskStatusNotStarted))

	_, err := svc.TransitionTask(context.Background(), Session{UserID: "usr_1"}, "task_1", "abandoned")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCompletingTaskStampsAndArchives(t *testing.T) {
	fs := taskTestStore(TaskStatusInProgress)
	var gotStatus string
	var gotCompletedAt *time.Time
	var gotArchived bool
	fs.updateTaskStatusFn = func(_ context.Context, _ string, status string, completedAt *time.Time, isArchived bool) error {
		gotStatus = status
		gotCompletedAt = completedAt
		gotArchived = isArchived
		return nil
	}
	svc, _ := newTestService(fs)

	if _, err := svc.TransitionTask(context.Background(), Session{UserID: "usr_1"}, "task_1", TaskStatusCompleted); err != nil {
		t.Fatalf("TransitionTask() error = %v", err)
	}
	if gotStatus != TaskStatusCompleted {
		t.Fatalf("expected completed write, got %q", gotStatus)
	}
	if gotCompletedAt == nil {
		t.Fatalf("expected completedAt to be stamped")
	}
	if !gotArchived {
		t.Fatalf("expected completion to archive the task")
	}
}

func TestReopeningTaskClearsCompletionAndArchival(t *testing.T) {
	fs := taskTestStore(TaskStatusCompleted)
	var gotCompletedAt *time.Time
	var gotArchived bool
	fs.updateTaskStatusFn = func(_ context.Context, _ string, _ string, completedAt *time.Time, isArchived bool) error {
		gotCompletedAt = completedAt
		gotArchived = isArchived
		return nil
	}
	svc, _ := newTestService(fs)

	if _, err := svc.TransitionTask(context.Background(), Session{UserID: "usr_1"}, "task_1", TaskStatusInProgress); err != nil {
		t.Fatalf("TransitionTask() error = %v", err)
	}
	if gotCompletedAt != nil {
		t.Fatalf("expected completedAt to be cleared on reopen")
	}
	if gotArchived {
		t.Fatalf("expected archival flag to be cleared on reopen")
	}
}

func TestCreateTaskDefaultsAndValidatesPriority(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	var inserted store.Task
	fs.insertTaskFn = func(_ context.Context, task store.Task) error {
		inserted = task
		return nil
	}
	svc, _ := newTestService(fs)
	session := Session{UserID: "usr_1"}

	if _, err := svc.CreateTask(context.Background(), session, CreateTaskInput{
		WorkspaceID: "ws_1",
		Title:       "Ship it",
	}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if inserted.Priority != "medium" {
		t.Fatalf("expected default priority medium, got %q", inserted.Priority)
	}
	if inserted.Status != TaskStatusNotStarted {
		t.Fatalf("expected new task to start not_started, got %q", inserted.Status)
	}

	_, err := svc.CreateTask(context.Background(), session, CreateTaskInput{
		WorkspaceID: "ws_1",
		Title:       "Ship it",
		Priority:    "urgent",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for bad priority, got %v", err)
	}
}

func TestCreateTaskRejectsCrossWorkspaceAssignee(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	fs.getMemberFn = func(_ context.Context, memberID string) (store.Member, error) {
		return store.Member{ID: memberID, WorkspaceID: "ws_other"}, nil
	}
	svc, _ := newTestService(fs)

	_, err := svc.CreateTask(context.Background(), Session{UserID: "usr_1"}, CreateTaskInput{
		WorkspaceID: "ws_1",
		Title:       "Ship it",
		AssignedTo:  "mbr_elsewhere",
	})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected not-found for cross-workspace assignee, got %v", err)
	}
}

func TestDeleteTaskRequiresCreatorOrAdmin(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	fs.findMemberFn = func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
		return &store.Member{ID: "mbr_other", WorkspaceID: workspaceID, UserID: userID, Role: "member"}, nil
	}
	svc, _ := newTestService(fs)

	err := svc.DeleteTask(context.Background(), Session{UserID: "usr_2"}, "task_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for non-creator delete, got %v", err)
	}
}

func TestDeleteTaskAllowsAdmin(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	fs.findMemberFn = func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
		return &store.Member{ID: "mbr_admin", WorkspaceID: workspaceID, UserID: userID, Role: "admin"}, nil
	}
	deleted := false
	fs.deleteTaskFn = func(context.Context, string) error {
		deleted = true
		return nil
	}
	svc, _ := newTestService(fs)

	if err := svc.DeleteTask(context.Background(), Session{UserID: "usr_2"}, "task_1"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if !deleted {
		t.Fatalf("expected task row deletion")
	}
}

func TestDeleteTaskRemovesAttachmentBlobs(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	fs.listTaskAttachmentsFn = func(_ context.Context, taskID string) ([]store.TaskAttachment, error) {
		return []store.TaskAttachment{
			{ID: "att_1", TaskID: taskID, FileID: "file_1"},
			{ID: "att_2", TaskID: taskID, FileID: "file_2"},
		}, nil
	}
	svc, _ := newTestService(fs)
	blobs := &fakeBlobs{}
	svc.blobs = blobs

	if err := svc.DeleteTask(context.Background(), Session{UserID: "usr_1"}, "task_1"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if len(blobs.deleted) != 2 {
		t.Fatalf("expected both attachment blobs deleted, got %v", blobs.deleted)
	}
}

func TestDeleteTaskAttachmentPermissions(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	fs.getTaskAttachmentFn = func(_ context.Context, attachmentID string) (store.TaskAttachment, error) {
		return store.TaskAttachment{ID: attachmentID, TaskID: "task_1", MemberID: "mbr_uploader", FileID: "file_1"}, nil
	}
	fs.findMemberFn = func(_ context.Context, workspaceID, userID string) (*store.Member, error) {
		return &store.Member{ID: "mbr_bystander", WorkspaceID: workspaceID, UserID: userID, Role: "member"}, nil
	}
	svc, _ := newTestService(fs)

	err := svc.DeleteTaskAttachment(context.Background(), Session{UserID: "usr_3"}, "att_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for bystander, got %v", err)
	}
}

func TestCreateTaskCommentRequiresBody(t *testing.T) {
	svc, _ := newTestService(taskTestStore(TaskStatusNotStarted))

	_, err := svc.CreateTaskComment(context.Background(), Session{UserID: "usr_1"}, "task_1", "   ")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestAssignTaskEmptyUnassigns(t *testing.T) {
	fs := taskTestStore(TaskStatusNotStarted)
	var gotAssignee *string
	assigneeSet := false
	fs.updateTaskAssigneeFn = func(_ context.Context, _ string, assignedTo *string) error {
		gotAssignee = assignedTo
		assigneeSet = true
		return nil
	}
	svc, _ := newTestService(fs)

	if _, err := svc.AssignTask(context.Background(), Session{UserID: "usr_1"}, "task_1", ""); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}
	if !assigneeSet || gotAssignee != nil {
		t.Fatalf("expected an explicit unassign write")
	}
}
