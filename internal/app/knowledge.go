package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"huddle/api/internal/rbac"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

type NoteInput struct {
	ChannelID string   `json:"channelId"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
}

type FAQInput struct {
	ChannelID string `json:"channelId"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

type DocumentInput struct {
	ChannelID   string   `json:"channelId"`
	Name        string   `json:"name"`
	FileID      string   `json:"fileId"`
	FileType    string   `json:"fileType"`
	FileSize    int64    `json:"fileSize"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func noteJSON(note store.Note) map[string]any {
	item := map[string]any{
		"id":          note.ID,
		"workspaceId": note.WorkspaceID,
		"title":       note.Title,
		"content":     note.Content,
		"createdBy":   note.CreatedBy,
		"creatorName": note.CreatorName,
		"tags":        note.Tags,
		"isPinned":    note.IsPinned,
		"createdAt":   note.CreatedAt.Format(time.RFC3339),
		"updatedAt":   note.UpdatedAt.Format(time.RFC3339),
	}
	if note.ChannelID != nil {
		item["channelId"] = *note.ChannelID
	}
	return item
}

func faqJSON(faq store.FAQ) map[string]any {
	item := map[string]any{
		"id":          faq.ID,
		"workspaceId": faq.WorkspaceID,
		"question":    faq.Question,
		"answer":      faq.Answer,
		"createdBy":   faq.CreatedBy,
		"creatorName": faq.CreatorName,
		"upvotes":     faq.Upvotes,
		"isPinned":    faq.IsPinned,
		"createdAt":   faq.CreatedAt.Format(time.RFC3339),
	}
	if faq.ChannelID != nil {
		item["channelId"] = *faq.ChannelID
	}
	return item
}

func documentJSON(doc store.Document) map[string]any {
	item := map[string]any{
		"id":           doc.ID,
		"workspaceId":  doc.WorkspaceID,
		"name":         doc.Name,
		"fileId":       doc.FileID,
		"fileType":     doc.FileType,
		"fileSize":     doc.FileSize,
		"uploadedBy":   doc.UploadedBy,
		"uploaderName": doc.UploaderName,
		"tags":         doc.Tags,
		"createdAt":    doc.CreatedAt.Format(time.RFC3339),
	}
	if doc.ChannelID != nil {
		item["channelId"] = *doc.ChannelID
	}
	if doc.Description != nil {
		item["description"] = *doc.Description
	}
	return item
}

// validateWorkspaceChannel checks an optional channel filter or anchor
// belongs to the workspace.
func (s *Service) validateWorkspaceChannel(ctx context.Context, workspaceID, channelID string) (*string, error) {
	if channelID == "" {
		return nil, nil
	}
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.WorkspaceID != workspaceID {
		return nil, errNotFound
	}
	return &channelID, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func (s *Service) CreateNote(ctx context.Context, session Session, workspaceID string, input NoteInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" || content == "" {
		return nil, validationError("title and content are required")
	}
	member, err := s.requireMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	channelID, err := s.validateWorkspaceChannel(ctx, workspaceID, input.ChannelID)
	if err != nil {
		return nil, err
	}

	note := store.Note{
		ID:          util.NewID("note"),
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		Title:       title,
		Content:     content,
		CreatedBy:   member.ID,
		Tags:        normalizeTags(input.Tags),
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	created, err := s.store.GetNote(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	return noteJSON(created), nil
}

func (s *Service) ListNotes(ctx context.Context, session Session, workspaceID, channelID string) ([]map[string]any, error) {
	if _, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, workspaceID, channelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, noteJSON(note))
	}
	return items, nil
}

func (s *Service) UpdateNote(ctx context.Context, session Session, noteID string, input NoteInput) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	member, err := s.requireMember(ctx, note.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if note.CreatedBy != member.ID {
		return nil, forbiddenError("Only the creator can edit a note")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = note.Title
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		content = note.Content
	}
	tags := note.Tags
	if input.Tags != nil {
		tags = normalizeTags(input.Tags)
	}
	if err := s.store.UpdateNote(ctx, noteID, title, content, tags); err != nil {
		return nil, err
	}
	updated, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	return noteJSON(updated), nil
}

// ToggleNotePin flips the pin. Creator or admin.
func (s *Service) ToggleNotePin(ctx context.Context, session Session, noteID string) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	member, err := s.requireMember(ctx, note.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if note.CreatedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return nil, forbiddenError("Only the creator or an admin can pin a note")
	}
	if err := s.store.SetNotePinned(ctx, noteID, !note.IsPinned); err != nil {
		return nil, err
	}
	note.IsPinned = !note.IsPinned
	return noteJSON(note), nil
}

func (s *Service) DeleteNote(ctx context.Context, session Session, noteID string) error {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	member, err := s.requireMember(ctx, note.WorkspaceID, session.UserID)
	if err != nil {
		return err
	}
	if note.CreatedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return forbiddenError("Only the creator or an admin can delete a note")
	}
	return s.store.DeleteNote(ctx, noteID)
}

func (s *Service) CreateFAQ(ctx context.Context, session Session, workspaceID string, input FAQInput) (map[string]any, error) {
	question := strings.TrimSpace(input.Question)
	answer := strings.TrimSpace(input.Answer)
	if question == "" || answer == "" {
		return nil, validationError("question and answer are required")
	}
	member, err := s.requireMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	channelID, err := s.validateWorkspaceChannel(ctx, workspaceID, input.ChannelID)
	if err != nil {
		return nil, err
	}

	faq := store.FAQ{
		ID:          util.NewID("faq"),
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		Question:    question,
		Answer:      answer,
		CreatedBy:   member.ID,
	}
	if err := s.store.InsertFAQ(ctx, faq); err != nil {
		return nil, err
	}
	created, err := s.store.GetFAQ(ctx, faq.ID)
	if err != nil {
		return nil, err
	}
	return faqJSON(created), nil
}

// ListFAQs orders pinned entries first, then by upvote count.
func (s *Service) ListFAQs(ctx context.Context, session Session, workspaceID, channelID string) ([]map[string]any, error) {
	if _, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	faqs, err := s.store.ListFAQs(ctx, workspaceID, channelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(faqs))
	for _, faq := range faqs {
		items = append(items, faqJSON(faq))
	}
	return items, nil
}

// UpvoteFAQ counts each member once. A repeat vote is acknowledged but
// changes nothing.
func (s *Service) UpvoteFAQ(ctx context.Context, session Session, faqID string) (map[string]any, error) {
	faq, err := s.store.GetFAQ(ctx, faqID)
	if err != nil {
		return nil, err
	}
	member, err := s.requireMember(ctx, faq.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	applied, upvotes, err := s.store.UpvoteFAQ(ctx, faqID, member.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"faqId":   faqID,
		"applied": applied,
		"upvotes": upvotes,
	}, nil
}

// ToggleFAQPin is admin-only; pinning curates the workspace-wide list.
func (s *Service) ToggleFAQPin(ctx context.Context, session Session, faqID string) (map[string]any, error) {
	faq, err := s.store.GetFAQ(ctx, faqID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAdmin(ctx, faq.WorkspaceID, session.UserID); err != nil {
		return nil, err
	}
	if err := s.store.SetFAQPinned(ctx, faqID, !faq.IsPinned); err != nil {
		return nil, err
	}
	faq.IsPinned = !faq.IsPinned
	return faqJSON(faq), nil
}

func (s *Service) DeleteFAQ(ctx context.Context, session Session, faqID string) error {
	faq, err := s.store.GetFAQ(ctx, faqID)
	if err != nil {
		return err
	}
	member, err := s.requireMember(ctx, faq.WorkspaceID, session.UserID)
	if err != nil {
		return err
	}
	if faq.CreatedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return forbiddenError("Only the creator or an admin can delete an FAQ")
	}
	return s.store.DeleteFAQ(ctx, faqID)
}

func (s *Service) CreateDocument(ctx context.Context, session Session, workspaceID string, input DocumentInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || strings.TrimSpace(input.FileID) == "" {
		return nil, validationError("name and fileId are required")
	}
	member, err := s.requireMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	channelID, err := s.validateWorkspaceChannel(ctx, workspaceID, input.ChannelID)
	if err != nil {
		return nil, err
	}

	doc := store.Document{
		ID:          util.NewID("doc"),
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		Name:        name,
		FileID:      input.FileID,
		FileType:    input.FileType,
		FileSize:    input.FileSize,
		UploadedBy:  member.ID,
		Tags:        normalizeTags(input.Tags),
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		doc.Description = &description
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	created, err := s.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return documentJSON(created), nil
}

func (s *Service) ListDocuments(ctx context.Context, session Session, workspaceID, channelID string) ([]map[string]any, error) {
	if _, err := s.resolveWorkspaceMember(ctx, workspaceID, session.UserID); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, workspaceID, channelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentJSON(doc))
	}
	return items, nil
}

func (s *Service) DocumentDownloadURL(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, doc.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}
	url, err := s.blobs.DownloadURL(ctx, doc.FileID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"documentId": documentID, "url": url}, nil
}

// DeleteDocument removes the blob, then the row.
func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	member, err := s.requireMember(ctx, doc.WorkspaceID, session.UserID)
	if err != nil {
		return err
	}
	if doc.UploadedBy != member.ID && !rbac.IsAdmin(rbac.Role(member.Role)) {
		return forbiddenError("Only the uploader or an admin can delete a document")
	}
	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, doc.FileID); err != nil {
			return err
		}
	}
	return s.store.DeleteDocument(ctx, documentID)
}

// PrepareUpload mints a blob handle and a presigned PUT URL.
func (s *Service) PrepareUpload(ctx context.Context, session Session) (map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}
	handle, uploadURL, err := s.blobs.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"handle":    handle,
		"uploadUrl": uploadURL,
	}, nil
}
