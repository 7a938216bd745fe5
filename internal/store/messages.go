package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessageFilter selects one container. Exactly one of ChannelID and
// ConversationID is set; ParentMessageID switches between root listing
// (empty: parent_message_id IS NULL) and a thread listing.
type MessageFilter struct {
	ChannelID       string
	ConversationID  string
	ParentMessageID string
	BeforeID        string
	Limit           int
}

const messageColumns = `
	m.id, m.workspace_id, m.member_id, m.channel_id, m.conversation_id,
	m.parent_message_id, m.body, m.image, m.created_at, m.updated_at,
	COALESCE(u.display_name, ''), COALESCE(u.email, '')
`

func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, workspace_id, member_id, channel_id, conversation_id, parent_message_id, body, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, message.ID, message.WorkspaceID, message.MemberID, message.ChannelID, message.ConversationID, message.ParentMessageID, message.Body, message.Image)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var item Message
	err := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN members mem ON mem.id = m.member_id
		LEFT JOIN users u ON u.id = mem.user_id
		WHERE m.id=$1
	`, messageID).Scan(
		&item.ID, &item.WorkspaceID, &item.MemberID, &item.ChannelID, &item.ConversationID,
		&item.ParentMessageID, &item.Body, &item.Image, &item.CreatedAt, &item.UpdatedAt,
		&item.AuthorName, &item.AuthorEmail,
	)
	if err != nil {
		return Message{}, err
	}
	return item, nil
}

// ListMessages returns one reverse-chronological page. Message ids are
// creation-time ordered, so ordering by id descending is ordering by
// created_at descending without a second index.
func (s *PostgresStore) ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN members mem ON mem.id = m.member_id
		LEFT JOIN users u ON u.id = mem.user_id
		WHERE ($1='' OR m.channel_id=$1)
		  AND ($2='' OR m.conversation_id=$2)
		  AND (($3='' AND m.parent_message_id IS NULL) OR m.parent_message_id=$3)
		  AND ($4='' OR m.id < $4)
		ORDER BY m.id DESC
		LIMIT $5
	`, filter.ChannelID, filter.ConversationID, filter.ParentMessageID, filter.BeforeID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.MemberID, &item.ChannelID, &item.ConversationID,
			&item.ParentMessageID, &item.Body, &item.Image, &item.CreatedAt, &item.UpdatedAt,
			&item.AuthorName, &item.AuthorEmail,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMessageBody(ctx context.Context, messageID, body string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET body=$2, updated_at=NOW() WHERE id=$1
	`, messageID, body)
	if err != nil {
		return fmt.Errorf("update message body: %w", err)
	}
	return nil
}

// DeleteMessage hard-deletes the row. Thread replies and reactions
// cascade with it.
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ToggleReaction removes the (message, member, value) triple when present
// and inserts it otherwise, in one transaction. The unique index on the
// triple backstops concurrent toggles.
func (s *PostgresStore) ToggleReaction(ctx context.Context, reactionID, messageID, memberID, value string) (added bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle reaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE message_id=$1 AND member_id=$2 AND value=$3
	`, messageID, memberID, value)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reaction rows: %w", err)
	}
	if affected == 0 {
		var workspaceID string
		if err := tx.QueryRowContext(ctx, `SELECT workspace_id FROM messages WHERE id=$1`, messageID).Scan(&workspaceID); err != nil {
			return false, fmt.Errorf("lookup message workspace: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reactions (id, workspace_id, message_id, member_id, value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (message_id, member_id, value) DO NOTHING
		`, reactionID, workspaceID, messageID, memberID, value); err != nil {
			return false, fmt.Errorf("insert reaction: %w", err)
		}
		added = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit toggle reaction: %w", err)
	}
	return added, nil
}

// ListReactionGroups aggregates reactions for a set of messages by value,
// carrying the reacting member ids for the display layer.
func (s *PostgresStore) ListReactionGroups(ctx context.Context, messageIDs []string) ([]ReactionGroup, error) {
	if len(messageIDs) == 0 {
		return []ReactionGroup{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, value, COUNT(*)::int, jsonb_agg(member_id ORDER BY id ASC)
		FROM reactions
		WHERE message_id = ANY($1)
		GROUP BY message_id, value
		ORDER BY message_id ASC, MIN(id) ASC
	`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("list reaction groups: %w", err)
	}
	defer rows.Close()

	items := make([]ReactionGroup, 0)
	for rows.Next() {
		var item ReactionGroup
		var membersRaw []byte
		if err := rows.Scan(&item.MessageID, &item.Value, &item.Count, &membersRaw); err != nil {
			return nil, fmt.Errorf("scan reaction group: %w", err)
		}
		_ = json.Unmarshal(membersRaw, &item.MemberIDs)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction groups: %w", err)
	}
	return items, nil
}

// ListThreadSummaries returns the reply aggregate for each parent message
// that has replies: count, latest replier's display name, latest reply time.
func (s *PostgresStore) ListThreadSummaries(ctx context.Context, parentMessageIDs []string) ([]ThreadSummary, error) {
	if len(parentMessageIDs) == 0 {
		return []ThreadSummary{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (m.parent_message_id)
			m.parent_message_id,
			COUNT(*) OVER (PARTITION BY m.parent_message_id)::int,
			COALESCE(u.display_name, ''),
			m.created_at
		FROM messages m
		LEFT JOIN members mem ON mem.id = m.member_id
		LEFT JOIN users u ON u.id = mem.user_id
		WHERE m.parent_message_id = ANY($1)
		ORDER BY m.parent_message_id ASC, m.id DESC
	`, parentMessageIDs)
	if err != nil {
		return nil, fmt.Errorf("list thread summaries: %w", err)
	}
	defer rows.Close()

	items := make([]ThreadSummary, 0)
	for rows.Next() {
		var item ThreadSummary
		if err := rows.Scan(&item.ParentMessageID, &item.ReplyCount, &item.LastReplyAuthor, &item.LastReplyAt); err != nil {
			return nil, fmt.Errorf("scan thread summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread summaries: %w", err)
	}
	return items, nil
}
