package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRoomFull is returned by JoinRoom when the room is at max_members.
var ErrRoomFull = errors.New("room is full")

// InsertRoom creates the room and its creator's membership in one
// transaction, so a room is never observable without at least one member.
func (s *PostgresStore) InsertRoom(ctx context.Context, room DiscussionRoom, creatorMembershipID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert room: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO discussion_rooms (id, workspace_id, name, topic, description, created_by, is_private, max_members)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, room.ID, room.WorkspaceID, room.Name, room.Topic, room.Description, room.CreatedBy, room.IsPrivate, room.MaxMembers); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_members (id, room_id, member_id, role)
		VALUES ($1, $2, $3, 'moderator')
	`, creatorMembershipID, room.ID, room.CreatedBy); err != nil {
		return fmt.Errorf("insert creator room membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert room: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (DiscussionRoom, error) {
	var item DiscussionRoom
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.workspace_id, r.name, r.topic, r.description, r.created_by,
		       r.is_private, r.max_members, r.created_at,
		       COALESCE(u.display_name, ''),
		       (SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = r.id)::int
		FROM discussion_rooms r
		LEFT JOIN members m ON m.id = r.created_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE r.id=$1
	`, roomID).Scan(
		&item.ID, &item.WorkspaceID, &item.Name, &item.Topic, &item.Description, &item.CreatedBy,
		&item.IsPrivate, &item.MaxMembers, &item.CreatedAt,
		&item.CreatorName, &item.MemberCount,
	)
	if err != nil {
		return DiscussionRoom{}, err
	}
	return item, nil
}

// ListRooms returns a workspace's rooms with member counts, annotated
// with whether viewerMemberID has joined each one.
func (s *PostgresStore) ListRooms(ctx context.Context, workspaceID, viewerMemberID string) ([]DiscussionRoom, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.workspace_id, r.name, r.topic, r.description, r.created_by,
		       r.is_private, r.max_members, r.created_at,
		       COALESCE(u.display_name, ''),
		       (SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = r.id)::int,
		       EXISTS (SELECT 1 FROM room_members rm WHERE rm.room_id = r.id AND rm.member_id = $2)
		FROM discussion_rooms r
		LEFT JOIN members m ON m.id = r.created_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE r.workspace_id=$1
		ORDER BY r.id DESC
	`, workspaceID, viewerMemberID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	items := make([]DiscussionRoom, 0)
	for rows.Next() {
		var item DiscussionRoom
		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.Name, &item.Topic, &item.Description, &item.CreatedBy,
			&item.IsPrivate, &item.MaxMembers, &item.CreatedAt,
			&item.CreatorName, &item.MemberCount, &item.IsMember,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM discussion_rooms WHERE id=$1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// JoinRoom adds memberID to the room, enforcing max_members under a row
// lock. Joining a room the member already belongs to returns the existing
// membership id.
func (s *PostgresStore) JoinRoom(ctx context.Context, membershipID, roomID, memberID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin join room: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM room_members WHERE room_id=$1 AND member_id=$2
	`, roomID, memberID).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup room membership: %w", err)
	}

	// Lock the room row so concurrent joins serialize on the capacity check.
	var maxMembers *int
	if err := tx.QueryRowContext(ctx, `
		SELECT max_members FROM discussion_rooms WHERE id=$1 FOR UPDATE
	`, roomID).Scan(&maxMembers); err != nil {
		return "", err
	}
	if maxMembers != nil {
		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)::int FROM room_members WHERE room_id=$1
		`, roomID).Scan(&count); err != nil {
			return "", fmt.Errorf("count room members: %w", err)
		}
		if count >= *maxMembers {
			return "", ErrRoomFull
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_members (id, room_id, member_id)
		VALUES ($1, $2, $3)
	`, membershipID, roomID, memberID); err != nil {
		return "", fmt.Errorf("insert room membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit join room: %w", err)
	}
	return membershipID, nil
}

// FindRoomMember returns nil when the member has not joined the room.
func (s *PostgresStore) FindRoomMember(ctx context.Context, roomID, memberID string) (*RoomMember, error) {
	var item RoomMember
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, member_id, joined_at, role, is_muted
		FROM room_members
		WHERE room_id=$1 AND member_id=$2
	`, roomID, memberID).Scan(&item.ID, &item.RoomID, &item.MemberID, &item.JoinedAt, &item.Role, &item.IsMuted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find room member: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertRoomMessage(ctx context.Context, message RoomMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_messages (id, room_id, member_id, body, image)
		VALUES ($1, $2, $3, $4, $5)
	`, message.ID, message.RoomID, message.MemberID, message.Body, message.Image)
	if err != nil {
		return fmt.Errorf("insert room message: %w", err)
	}
	return nil
}

// ListRoomMessages returns the newest page of room chatter, capped at limit.
func (s *PostgresStore) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]RoomMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT rm.id, rm.room_id, rm.member_id, rm.body, rm.image, rm.created_at, rm.updated_at,
		       COALESCE(u.display_name, '')
		FROM room_messages rm
		LEFT JOIN members m ON m.id = rm.member_id
		LEFT JOIN users u ON u.id = m.user_id
		WHERE rm.room_id=$1
		ORDER BY rm.id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list room messages: %w", err)
	}
	defer rows.Close()

	items := make([]RoomMessage, 0)
	for rows.Next() {
		var item RoomMessage
		if err := rows.Scan(&item.ID, &item.RoomID, &item.MemberID, &item.Body, &item.Image, &item.CreatedAt, &item.UpdatedAt, &item.AuthorName); err != nil {
			return nil, fmt.Errorf("scan room message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room messages: %w", err)
	}
	return items, nil
}
