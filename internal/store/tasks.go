package store

import (
	"context"
	"fmt"
	"time"
)

const taskColumns = `
	t.id, t.workspace_id, t.channel_id, t.title, t.description, t.created_by,
	t.assigned_to, t.status, t.priority, t.due_date, t.completed_at,
	t.is_archived, t.created_at, t.updated_at,
	COALESCE(cu.display_name, ''), COALESCE(au.display_name, '')
`

const taskJoins = `
	LEFT JOIN members cm ON cm.id = t.created_by
	LEFT JOIN users cu ON cu.id = cm.user_id
	LEFT JOIN members am ON am.id = t.assigned_to
	LEFT JOIN users au ON au.id = am.user_id
`

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, workspace_id, channel_id, title, description, created_by, assigned_to, status, priority, due_date, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, task.ID, task.WorkspaceID, task.ChannelID, task.Title, task.Description, task.CreatedBy, task.AssignedTo, task.Status, task.Priority, task.DueDate, task.IsArchived)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	var item Task
	err := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		`+taskJoins+`
		WHERE t.id=$1
	`, taskID).Scan(
		&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Title, &item.Description, &item.CreatedBy,
		&item.AssignedTo, &item.Status, &item.Priority, &item.DueDate, &item.CompletedAt,
		&item.IsArchived, &item.CreatedAt, &item.UpdatedAt,
		&item.CreatorName, &item.AssigneeName,
	)
	if err != nil {
		return Task{}, err
	}
	return item, nil
}

// ListTasks returns active (archived=false) or history (archived=true)
// tasks, optionally narrowed to one channel.
func (s *PostgresStore) ListTasks(ctx context.Context, workspaceID string, archived bool, channelID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		`+taskJoins+`
		WHERE t.workspace_id=$1 AND t.is_archived=$2
		  AND ($3='' OR t.channel_id=$3)
		ORDER BY t.id DESC
	`, workspaceID, archived, channelID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Title, &item.Description, &item.CreatedBy,
			&item.AssignedTo, &item.Status, &item.Priority, &item.DueDate, &item.CompletedAt,
			&item.IsArchived, &item.CreatedAt, &item.UpdatedAt,
			&item.CreatorName, &item.AssigneeName,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, taskID, title string, description *string, priority string, dueDate *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, priority=$4, due_date=$5, updated_at=NOW()
		WHERE id=$1
	`, taskID, title, description, priority, dueDate)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateTaskStatus applies a status transition with its derived fields.
// The completion side effects (completedAt, isArchived) are computed by
// the caller; archival is kept strictly in lockstep with status here.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID, status string, completedAt *time.Time, isArchived bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status=$2, completed_at=$3, is_archived=$4, updated_at=NOW()
		WHERE id=$1
	`, taskID, status, completedAt, isArchived)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTaskAssignee(ctx context.Context, taskID string, assignedTo *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET assigned_to=$2, updated_at=NOW() WHERE id=$1
	`, taskID, assignedTo)
	if err != nil {
		return fmt.Errorf("update task assignee: %w", err)
	}
	return nil
}

// DeleteTask removes the task row; comments and attachment metadata
// cascade. Attachment blobs are the caller's responsibility and must be
// removed before this call.
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertTaskComment(ctx context.Context, comment TaskComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, member_id, body)
		VALUES ($1, $2, $3, $4)
	`, comment.ID, comment.TaskID, comment.MemberID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert task comment: %w", err)
	}
	return nil
}

// ListTaskComments returns comments oldest-first. This is deliberately the
// inverse of chat retrieval order; comment threads read top to bottom.
func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string) ([]TaskComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.task_id, c.member_id, c.body, c.created_at, COALESCE(u.display_name, '')
		FROM task_comments c
		LEFT JOIN members m ON m.id = c.member_id
		LEFT JOIN users u ON u.id = m.user_id
		WHERE c.task_id=$1
		ORDER BY c.id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task comments: %w", err)
	}
	defer rows.Close()

	items := make([]TaskComment, 0)
	for rows.Next() {
		var item TaskComment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.MemberID, &item.Body, &item.CreatedAt, &item.AuthorName); err != nil {
			return nil, fmt.Errorf("scan task comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTaskAttachment(ctx context.Context, attachment TaskAttachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_attachments (id, task_id, member_id, name, file_id, file_type, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attachment.ID, attachment.TaskID, attachment.MemberID, attachment.Name, attachment.FileID, attachment.FileType, attachment.FileSize)
	if err != nil {
		return fmt.Errorf("insert task attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTaskAttachment(ctx context.Context, attachmentID string) (TaskAttachment, error) {
	var item TaskAttachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, member_id, name, file_id, file_type, file_size, created_at
		FROM task_attachments
		WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.TaskID, &item.MemberID, &item.Name, &item.FileID, &item.FileType, &item.FileSize, &item.CreatedAt)
	if err != nil {
		return TaskAttachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTaskAttachments(ctx context.Context, taskID string) ([]TaskAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, member_id, name, file_id, file_type, file_size, created_at
		FROM task_attachments
		WHERE task_id=$1
		ORDER BY id DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task attachments: %w", err)
	}
	defer rows.Close()

	items := make([]TaskAttachment, 0)
	for rows.Next() {
		var item TaskAttachment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.MemberID, &item.Name, &item.FileID, &item.FileType, &item.FileSize, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteTaskAttachment(ctx context.Context, attachmentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete task attachment: %w", err)
	}
	return nil
}
