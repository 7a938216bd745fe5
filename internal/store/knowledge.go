package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tags travel as jsonb. marshalTags never fails for []string, so the
// error is folded into the surrounding query error path.
func marshalTags(tags []string) []byte {
	if tags == nil {
		tags = []string{}
	}
	raw, _ := json.Marshal(tags)
	return raw
}

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, workspace_id, channel_id, title, content, created_by, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, note.ID, note.WorkspaceID, note.ChannelID, note.Title, note.Content, note.CreatedBy, marshalTags(note.Tags))
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var item Note
	var tagsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT n.id, n.workspace_id, n.channel_id, n.title, n.content, n.created_by,
		       n.tags, n.is_pinned, n.created_at, n.updated_at, COALESCE(u.display_name, '')
		FROM notes n
		LEFT JOIN members m ON m.id = n.created_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE n.id=$1
	`, noteID).Scan(
		&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Title, &item.Content, &item.CreatedBy,
		&tagsRaw, &item.IsPinned, &item.CreatedAt, &item.UpdatedAt, &item.CreatorName,
	)
	if err != nil {
		return Note{}, err
	}
	_ = json.Unmarshal(tagsRaw, &item.Tags)
	return item, nil
}

// ListNotes returns pinned notes first, newest first within each group.
func (s *PostgresStore) ListNotes(ctx context.Context, workspaceID, channelID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.workspace_id, n.channel_id, n.title, n.content, n.created_by,
		       n.tags, n.is_pinned, n.created_at, n.updated_at, COALESCE(u.display_name, '')
		FROM notes n
		LEFT JOIN members m ON m.id = n.created_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE n.workspace_id=$1
		  AND ($2='' OR n.channel_id=$2)
		ORDER BY n.is_pinned DESC, n.id DESC
	`, workspaceID, channelID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		var tagsRaw []byte
		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Title, &item.Content, &item.CreatedBy,
			&tagsRaw, &item.IsPinned, &item.CreatedAt, &item.UpdatedAt, &item.CreatorName,
		); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		_ = json.Unmarshal(tagsRaw, &item.Tags)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, noteID, title, content string, tags []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes SET title=$2, content=$3, tags=$4, updated_at=NOW() WHERE id=$1
	`, noteID, title, content, marshalTags(tags))
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetNotePinned(ctx context.Context, noteID string, pinned bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes SET is_pinned=$2, updated_at=NOW() WHERE id=$1
	`, noteID, pinned)
	if err != nil {
		return fmt.Errorf("set note pinned: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertFAQ(ctx context.Context, faq FAQ) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO faqs (id, workspace_id, channel_id, question, answer, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, faq.ID, faq.WorkspaceID, faq.ChannelID, faq.Question, faq.Answer, faq.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert faq: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFAQ(ctx context.Context, faqID string) (FAQ, error) {
	var item FAQ
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.workspace_id, f.channel_id, f.question, f.answer, f.created_by,
		       f.upvotes, f.is_pinned, f.created_at, COALESCE(u.display_name, '')
		FROM faqs f
		LEFT JOIN members m ON m.id = f.created_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE f.id=$1
	`, faqID).Scan(
		&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Question, &item.Answer, &item.CreatedBy,
		&item.Upvotes, &item.IsPinned, &item.CreatedAt, &item.CreatorName,
	)
	if err != nil {
		return FAQ{}, err
	}
	return item, nil
}

// ListFAQs orders pinned first, then by upvotes descending, then newest.
func (s *PostgresStore) ListFAQs(ctx context.Context, workspaceID, channelID string) ([]FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.workspace_id, f.channel_id, f.question, f.answer, f.created_by,
		       f.upvotes, f.is_pinned, f.created_at, COALESCE(u.display_name, '')
		FROM faqs f
		LEFT JOIN members m ON m.id = f.created_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE f.workspace_id=$1
		  AND ($2='' OR f.channel_id=$2)
		ORDER BY f.is_pinned DESC, f.upvotes DESC, f.id DESC
	`, workspaceID, channelID)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rows.Close()

	items := make([]FAQ, 0)
	for rows.Next() {
		var item FAQ
		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Question, &item.Answer, &item.CreatedBy,
			&item.Upvotes, &item.IsPinned, &item.CreatedAt, &item.CreatorName,
		); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faqs: %w", err)
	}
	return items, nil
}

// UpvoteFAQ records one upvote per member per faq. The second upvote from
// the same member is a no-op; applied reports whether the counter moved.
func (s *PostgresStore) UpvoteFAQ(ctx context.Context, faqID, memberID string) (applied bool, upvotes int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin upvote faq: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO faq_upvotes (faq_id, member_id)
		VALUES ($1, $2)
		ON CONFLICT (faq_id, member_id) DO NOTHING
	`, faqID, memberID)
	if err != nil {
		return false, 0, fmt.Errorf("insert faq upvote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("faq upvote rows: %w", err)
	}

	if affected > 0 {
		err = tx.QueryRowContext(ctx, `
			UPDATE faqs SET upvotes = upvotes + 1 WHERE id=$1 RETURNING upvotes
		`, faqID).Scan(&upvotes)
		applied = true
	} else {
		err = tx.QueryRowContext(ctx, `SELECT upvotes FROM faqs WHERE id=$1`, faqID).Scan(&upvotes)
	}
	if err != nil {
		return false, 0, err
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit upvote faq: %w", err)
	}
	return applied, upvotes, nil
}

func (s *PostgresStore) SetFAQPinned(ctx context.Context, faqID string, pinned bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE faqs SET is_pinned=$2 WHERE id=$1`, faqID, pinned)
	if err != nil {
		return fmt.Errorf("set faq pinned: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFAQ(ctx context.Context, faqID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM faqs WHERE id=$1`, faqID)
	if err != nil {
		return fmt.Errorf("delete faq: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, workspace_id, channel_id, name, file_id, file_type, file_size, description, uploaded_by, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, doc.ID, doc.WorkspaceID, doc.ChannelID, doc.Name, doc.FileID, doc.FileType, doc.FileSize, doc.Description, doc.UploadedBy, marshalTags(doc.Tags))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	var tagsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.workspace_id, d.channel_id, d.name, d.file_id, d.file_type, d.file_size,
		       d.description, d.uploaded_by, d.tags, d.created_at, COALESCE(u.display_name, '')
		FROM documents d
		LEFT JOIN members m ON m.id = d.uploaded_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE d.id=$1
	`, documentID).Scan(
		&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Name, &item.FileID, &item.FileType, &item.FileSize,
		&item.Description, &item.UploadedBy, &tagsRaw, &item.CreatedAt, &item.UploaderName,
	)
	if err != nil {
		return Document{}, err
	}
	_ = json.Unmarshal(tagsRaw, &item.Tags)
	return item, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, workspaceID, channelID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.workspace_id, d.channel_id, d.name, d.file_id, d.file_type, d.file_size,
		       d.description, d.uploaded_by, d.tags, d.created_at, COALESCE(u.display_name, '')
		FROM documents d
		LEFT JOIN members m ON m.id = d.uploaded_by
		LEFT JOIN users u ON u.id = m.user_id
		WHERE d.workspace_id=$1
		  AND ($2='' OR d.channel_id=$2)
		ORDER BY d.id DESC
	`, workspaceID, channelID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		var tagsRaw []byte
		if err := rows.Scan(
			&item.ID, &item.WorkspaceID, &item.ChannelID, &item.Name, &item.FileID, &item.FileType, &item.FileSize,
			&item.Description, &item.UploadedBy, &tagsRaw, &item.CreatedAt, &item.UploaderName,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		_ = json.Unmarshal(tagsRaw, &item.Tags)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
