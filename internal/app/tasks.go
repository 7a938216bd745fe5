package app

import (
	"context"
	"strings"
	"time"

	"huddle/api/internal/rbac"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

const (
	TaskStatusNotStarted = "not_started"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusDelayed    = "delayed"
)

// taskTransitions is the workflow graph. Completion is reachable from
// every state; leaving completed reopens the task.
var taskTransitions = map[string][]string{
	TaskStatusNotStarted: {TaskStatusInProgress, TaskStatusCompleted},
	TaskStatusInProgress: {TaskStatusNotStarted, TaskStatusCompleted, TaskStatusDelayed},
	TaskStatusDelayed:    {TaskStatusInProgress, TaskStatusCompleted},
	TaskStatusCompleted:  {TaskStatusNotStarted, TaskStatusInProgress},
}

var taskPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
}

type CreateTaskInput struct {
	WorkspaceID string     `json:"workspaceId"`
	ChannelID   string     `json:"channelId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assignedTo"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
}

type UpdateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
}

func taskJSON(task store.Task) map[string]any {
	item := map[string]any{
		"id":           task.ID,
		"workspaceId":  task.WorkspaceID,
		"title":        task.Title,
		"createdBy":    task.CreatedBy,
		"creatorName":  task.CreatorName,
		"status":       task.Status,
		"priority":     task.Priority,
		"isArchived":   task.IsArchived,
		"createdAt":    task.CreatedAt.Format(time.RFC3339),
		"updatedAt":    task.UpdatedAt.Format(time.RFC3339),
	}
	if task.ChannelID != nil {
		item["channelId"] = *task.ChannelID
	}
	if task.Description != nil {
		item["description"] = *task.Description
	}
	if task.AssignedTo != nil {
		item["assignedTo"] = *task.AssignedTo
		item["assigneeName"] = task.AssigneeName
	}
	if task.DueDate != nil {
		item["dueDate"] = task.DueDate.Format(time.RFC3339)
	}
	if task.CompletedAt != nil {
		item["completedAt"] = task.CompletedAt.Format(time.RFC3339)
	}
	return item
}

func taskCommentJSON(comment store.TaskComment) map[string]any {
	return map[string]any{
		"id":         comment.ID,
		"taskId":     comment.TaskID,
		"memberId":   comment.MemberID,
		"body":       comment.Body,
		"authorName": comment.AuthorName,
		"createdAt":  comment.CreatedAt.Format(time.RFC3339),
	}
}

func taskAttachmentJSON(attachment store.TaskAttachment) map[string]any {
	return map[string]any{
		"id":        attachment.ID,
		"taskId":    attachment.TaskID,
		"memberId":  attachment.MemberID,
		"name":      attachment.Name,
		"fileId":    attachment.FileID,
		"fileType":  attachment.FileType,
		"fileSize":  attachment.FileSize,
		"createdAt": attachment.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Service) CreateTask(ctx context.Context, session Session, input CreateTaskInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	priority := strings.ToLower(strings.TrimSpace(input.Priority))
	if priority == "" {
		priority = "medium"
	}
	if _, ok := taskPriorities[priority]; !ok {
		return nil, validationError("priority must be low, medium, or high")
	}

	member, err := s.requireMember(ctx, input.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}

	task := store.Task{
		ID:          util.NewID("task"),
		WorkspaceID: input.WorkspaceID,
		Title:       title,
		CreatedBy:   member.ID,
		Status:      TaskStatusNotStarted,
		Priority:    priority,
		DueDate:     input.DueDate,
	}
	if input.ChannelID != "" {
		channel, err := s.store.GetChannel(ctx, input.ChannelID)
		if err != nil {
			return nil, err
		}
		if channel.WorkspaceID != input.WorkspaceID {
			return nil, errNotFound
		}
		task.ChannelID = &input.ChannelID
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		task.Description = &description
	}
	if input.AssignedTo != "" {
		assignee, err := s.store.GetMember(ctx, input.AssignedTo)
		if err != nil {
			return nil, err
		}
		if assignee.WorkspaceID != input.WorkspaceID {
			return nil, errNotFound
		}
		task.AssignedTo = &input.AssignedTo
	}

	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	created, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return taskJSON(created), nil
}

func (s *Service) ListTasks(ctx context.Context, session Session, workspaceID string, archived bool, channelID string) ([]map[string]any, error) {
	if _, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, workspaceID, archived, channelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskJSON(task))
	}
	return items, nil
}

// taskForMember loads a task and checks workspace standing in one step.
func (s *Service) taskForMember(ctx context.Context, session Session, taskID string) (store.Task, store.Member, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, store.Member{}, err
	}
	member, err := s.requireMember(ctx, task.WorkspaceID, session.UserID)
	if err != nil {
		return store.Task{}, store.Member{}, err
	}
	return task, member, nil
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, task.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	return taskJSON(task), nil
}

func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, input UpdateTaskInput) (map[string]any, error) {
	task, _, err := s.taskForMember(ctx, session, taskID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = task.Title
	}
	priority := strings.ToLower(strings.TrimSpace(input.Priority))
	if priority == "" {
		priority = task.Priority
	}
	if _, ok := taskPriorities[priority]; !ok {
		return nil, validationError("priority must be low, medium, or high")
	}
	description := task.Description
	if trimmed := strings.TrimSpace(input.Description); trimmed != "" {
		description = &trimmed
	}
	dueDate := task.DueDate
	if input.DueDate != nil {
		dueDate = input.DueDate
	}

	if err := s.store.UpdateTask(ctx, taskID, title, description, priority, dueDate); err != nil {
		return nil, err
	}
	updated, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskJSON(updated), nil
}

// TransitionTask moves a task through the workflow. Entering completed
// stamps completedAt and archives the task in the same write; leaving
// completed clears both.
func (s *Service) TransitionTask(ctx context.Context, session Session, taskID, status string) (map[string]any, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := taskTransitions[status]; !ok {
		return nil, validationError("status must be not_started, in_progress, completed, or delayed")
	}
	task, _, err := s.taskForMember(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	if status == task.Status {
		return taskJSON(task), nil
	}
	if !transitionAllowed(task.Status, status) {
		return nil, conflictError("INVALID_TRANSITION", "Cannot move task from "+task.Status+" to "+status, map[string]any{
			"from": task.Status,
			"to":   status,
		})
	}

	var completedAt *time.Time
	isArchived := false
	if status == TaskStatusCompleted {
		now := time.Now()
		completedAt = &now
		isArchived = true
	}
	if err := s.store.UpdateTaskStatus(ctx, taskID, status, completedAt, isArchived); err != nil {
		return nil, err
	}
	updated, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskJSON(updated), nil
}

func transitionAllowed(from, to string) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Service) AssignTask(ctx context.Context, session Session, taskID, assignedTo string) (map[string]any, error) {
	task, _, err := s.taskForMember(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	var assignee *string
	if assignedTo != "" {
		member, err := s.store.GetMember(ctx, assignedTo)
		if err != nil {
			return nil, err
		}
		if member.WorkspaceID != task.WorkspaceID {
			return nil, errNotFound
		}
		assignee = &assignedTo
	}
	if err := s.store.UpdateTaskAssignee(ctx, taskID, assignee); err != nil {
		return nil, err
	}
	updated, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskJSON(updated), nil
}

// DeleteTask removes the task, its comments, and its attachments. The
// attachment blobs go first so a failed blob delete never strands the
// metadata.
func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	task, member, err := s.taskForMember(ctx, session, taskID)
	if err != nil {
		return err
	}
	if task.CreatedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return forbiddenError("Only the creator or an admin can delete a task")
	}
	attachments, err := s.store.ListTaskAttachments(ctx, taskID)
	if err != nil {
		return err
	}
	if s.blobs != nil {
		for _, attachment := range attachments {
			if err := s.blobs.Delete(ctx, attachment.FileID); err != nil {
				return err
			}
		}
	}
	return s.store.DeleteTask(ctx, taskID)
}

func (s *Service) CreateTaskComment(ctx context.Context, session Session, taskID, body string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError("body is required")
	}
	_, member, err := s.taskForMember(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	comment := store.TaskComment{
		ID:       util.NewID("tcm"),
		TaskID:   taskID,
		MemberID: member.ID,
		Body:     body,
	}
	if err := s.store.InsertTaskComment(ctx, comment); err != nil {
		return nil, err
	}
	comment.AuthorName = member.UserName
	comment.CreatedAt = time.Now()
	return taskCommentJSON(comment), nil
}

func (s *Service) ListTaskComments(ctx context.Context, session Session, taskID string) ([]map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, task.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	comments, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, taskCommentJSON(comment))
	}
	return items, nil
}

type CreateAttachmentInput struct {
	Name     string `json:"name"`
	FileID   string `json:"fileId"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

func (s *Service) CreateTaskAttachment(ctx context.Context, session Session, taskID string, input CreateAttachmentInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.FileID) == "" {
		return nil, validationError("name and fileId are required")
	}
	_, member, err := s.taskForMember(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	attachment := store.TaskAttachment{
		ID:       util.NewID("att"),
		TaskID:   taskID,
		MemberID: member.ID,
		Name:     strings.TrimSpace(input.Name),
		FileID:   input.FileID,
		FileType: input.FileType,
		FileSize: input.FileSize,
	}
	if err := s.store.InsertTaskAttachment(ctx, attachment); err != nil {
		return nil, err
	}
	attachment.CreatedAt = time.Now()
	return taskAttachmentJSON(attachment), nil
}

func (s *Service) ListTaskAttachments(ctx context.Context, session Session, taskID string) ([]map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, task.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	attachments, err := s.store.ListTaskAttachments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, attachment := range attachments {
		items = append(items, taskAttachmentJSON(attachment))
	}
	return items, nil
}

// DeleteTaskAttachment removes the blob and the metadata row as one
// logical operation. Blob first; an orphaned object is recoverable, a
// dangling row is a broken link.
func (s *Service) DeleteTaskAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.store.GetTaskAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	task, member, err := s.taskForMember(ctx, session, attachment.TaskID)
	if err != nil {
		return err
	}
	if attachment.MemberID != member.ID && task.CreatedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return forbiddenError("Only the uploader, the task creator, or an admin can delete an attachment")
	}
	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, attachment.FileID); err != nil {
			return err
		}
	}
	return s.store.DeleteTaskAttachment(ctx, attachmentID)
}
