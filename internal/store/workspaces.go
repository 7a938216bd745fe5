package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertWorkspace(ctx context.Context, workspace Workspace, ownerMember Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert workspace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, user_id, join_code)
		VALUES ($1, $2, $3, $4)
	`, workspace.ID, workspace.Name, workspace.UserID, workspace.JoinCode); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO members (id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
	`, ownerMember.ID, ownerMember.WorkspaceID, ownerMember.UserID, ownerMember.Role); err != nil {
		return fmt.Errorf("insert owner member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_id, join_code, created_at, updated_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.Name, &item.UserID, &item.JoinCode, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.user_id, w.join_code, w.created_at, w.updated_at
		FROM workspaces w
		JOIN members m ON m.workspace_id = w.id
		WHERE m.user_id=$1
		ORDER BY w.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces for user: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.Name, &item.UserID, &item.JoinCode, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateWorkspaceName(ctx context.Context, workspaceID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET name=$2, updated_at=NOW() WHERE id=$1
	`, workspaceID, name)
	if err != nil {
		return fmt.Errorf("update workspace name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWorkspaceJoinCode(ctx context.Context, workspaceID, joinCode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET join_code=$2, updated_at=NOW() WHERE id=$1
	`, workspaceID, joinCode)
	if err != nil {
		return fmt.Errorf("update workspace join code: %w", err)
	}
	return nil
}

// DeleteWorkspace removes the workspace row. Members, channels,
// conversations, messages, tasks, rooms, and knowledge artifacts go with
// it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMember(ctx context.Context, member Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
	`, member.ID, member.WorkspaceID, member.UserID, member.Role)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// FindMember resolves the unique Member for a (workspace, user) pair.
// Absence is not an error here; callers decide what absence means.
func (s *PostgresStore) FindMember(ctx context.Context, workspaceID, userID string) (*Member, error) {
	var item Member
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.created_at, u.display_name, u.email
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id=$1 AND m.user_id=$2
	`, workspaceID, userID).Scan(&item.ID, &item.WorkspaceID, &item.UserID, &item.Role, &item.CreatedAt, &item.UserName, &item.UserEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) GetMember(ctx context.Context, memberID string) (Member, error) {
	var item Member
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.created_at, u.display_name, u.email
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.id=$1
	`, memberID).Scan(&item.ID, &item.WorkspaceID, &item.UserID, &item.Role, &item.CreatedAt, &item.UserName, &item.UserEmail)
	if err != nil {
		return Member{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.created_at, u.display_name, u.email
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id=$1
		ORDER BY m.id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var item Member
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.UserID, &item.Role, &item.CreatedAt, &item.UserName, &item.UserEmail); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMemberRole(ctx context.Context, memberID, role string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET role=$2 WHERE id=$1`, memberID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountAdmins(ctx context.Context, workspaceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM members WHERE workspace_id=$1 AND role='admin'
	`, workspaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// DeleteMember removes a member row. The member's messages, reactions,
// conversations, room memberships, and authored artifacts cascade.
func (s *PostgresStore) DeleteMember(ctx context.Context, memberID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id=$1`, memberID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertChannel(ctx context.Context, channel Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, workspace_id, name)
		VALUES ($1, $2, $3)
	`, channel.ID, channel.WorkspaceID, channel.Name)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var item Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, created_at
		FROM channels
		WHERE id=$1
	`, channelID).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.CreatedAt)
	if err != nil {
		return Channel{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, workspaceID string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, created_at
		FROM channels
		WHERE workspace_id=$1
		ORDER BY id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	items := make([]Channel, 0)
	for rows.Next() {
		var item Channel
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateChannelName(ctx context.Context, channelID, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET name=$2 WHERE id=$1`, channelID, name)
	if err != nil {
		return fmt.Errorf("update channel name: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, channelID)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// EnsureConversation finds the conversation for an unordered member pair,
// creating it when absent. Lookup and insert run in one transaction so two
// concurrent callers cannot create the pair twice; the unique pair index
// backstops the race.
func (s *PostgresStore) EnsureConversation(ctx context.Context, conversation Conversation) (Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin ensure conversation: %w", err)
	}
	defer tx.Rollback()

	var existing Conversation
	err = tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, member_one_id, member_two_id, created_at
		FROM conversations
		WHERE workspace_id=$1
		  AND ((member_one_id=$2 AND member_two_id=$3) OR (member_one_id=$3 AND member_two_id=$2))
	`, conversation.WorkspaceID, conversation.MemberOneID, conversation.MemberTwoID).Scan(
		&existing.ID, &existing.WorkspaceID, &existing.MemberOneID, &existing.MemberTwoID, &existing.CreatedAt,
	)
	if err == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			return Conversation{}, fmt.Errorf("commit ensure conversation: %w", commitErr)
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("find conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, workspace_id, member_one_id, member_two_id)
		VALUES ($1, $2, $3, $4)
	`, conversation.ID, conversation.WorkspaceID, conversation.MemberOneID, conversation.MemberTwoID); err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, fmt.Errorf("commit ensure conversation: %w", err)
	}
	return conversation, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var item Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, member_one_id, member_two_id, created_at
		FROM conversations
		WHERE id=$1
	`, conversationID).Scan(&item.ID, &item.WorkspaceID, &item.MemberOneID, &item.MemberTwoID, &item.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return item, nil
}
