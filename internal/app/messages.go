package app

import (
	"context"
	"strings"
	"time"

	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

// compactWindow is how close together two messages from the same author
// must land to render as one visual run.
const compactWindow = 5 * time.Minute

const defaultMessagePageSize = 50

type CreateMessageInput struct {
	WorkspaceID     string `json:"workspaceId"`
	ChannelID       string `json:"channelId"`
	ConversationID  string `json:"conversationId"`
	ParentMessageID string `json:"parentMessageId"`
	Body            string `json:"body"`
	Image           string `json:"image"`
}

type ListMessagesInput struct {
	ChannelID       string
	ConversationID  string
	ParentMessageID string
	Cursor          string
	Limit           int
}

func messageJSON(message store.Message) map[string]any {
	item := map[string]any{
		"id":          message.ID,
		"workspaceId": message.WorkspaceID,
		"memberId":    message.MemberID,
		"body":        message.Body,
		"createdAt":   message.CreatedAt.Format(time.RFC3339),
		"author": map[string]any{
			"memberId": message.MemberID,
			"name":     message.AuthorName,
			"email":    message.AuthorEmail,
		},
	}
	if message.ChannelID != nil {
		item["channelId"] = *message.ChannelID
	}
	if message.ConversationID != nil {
		item["conversationId"] = *message.ConversationID
	}
	if message.ParentMessageID != nil {
		item["parentMessageId"] = *message.ParentMessageID
	}
	if message.Image != nil {
		item["image"] = *message.Image
	}
	if message.UpdatedAt != nil {
		item["updatedAt"] = message.UpdatedAt.Format(time.RFC3339)
	}
	return item
}

// resolveContainer checks that exactly one container is named, that it
// lives in the stated workspace, and that the caller is a member there.
func (s *Service) resolveContainer(ctx context.Context, session Session, workspaceID, channelID, conversationID string) (store.Member, error) {
	if (channelID == "") == (conversationID == "") {
		return store.Member{}, validationError("exactly one of channelId and conversationId is required")
	}
	member, err := s.requireMember(ctx, workspaceID, session.UserID)
	if err != nil {
		return store.Member{}, err
	}
	if channelID != "" {
		channel, err := s.store.GetChannel(ctx, channelID)
		if err != nil {
			return store.Member{}, err
		}
		if channel.WorkspaceID != workspaceID {
			return store.Member{}, errNotFound
		}
		return member, nil
	}
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return store.Member{}, err
	}
	if conversation.WorkspaceID != workspaceID {
		return store.Member{}, errNotFound
	}
	if conversation.MemberOneID != member.ID && conversation.MemberTwoID != member.ID {
		return store.Member{}, forbiddenError("Not a participant in this conversation")
	}
	return member, nil
}

func (s *Service) CreateMessage(ctx context.Context, session Session, input CreateMessageInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" && input.Image == "" {
		return nil, validationError("body or image is required")
	}

	member, err := s.resolveContainer(ctx, session, input.WorkspaceID, input.ChannelID, input.ConversationID)
	if err != nil {
		return nil, err
	}

	message := store.Message{
		ID:          util.NewID("msg"),
		WorkspaceID: input.WorkspaceID,
		MemberID:    member.ID,
		Body:        body,
	}
	if input.ChannelID != "" {
		message.ChannelID = &input.ChannelID
	}
	if input.ConversationID != "" {
		message.ConversationID = &input.ConversationID
	}
	if input.Image != "" {
		message.Image = &input.Image
	}
	if input.ParentMessageID != "" {
		parent, err := s.store.GetMessage(ctx, input.ParentMessageID)
		if err != nil {
			return nil, err
		}
		if parent.WorkspaceID != input.WorkspaceID || !sameContainer(parent, message) {
			return nil, validationError("parent message is not in the same channel or conversation")
		}
		if parent.ParentMessageID != nil {
			return nil, validationError("cannot reply to a thread reply")
		}
		message.ParentMessageID = &input.ParentMessageID
	}

	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}
	created, err := s.store.GetMessage(ctx, message.ID)
	if err != nil {
		return nil, err
	}
	return messageJSON(created), nil
}

func sameContainer(a, b store.Message) bool {
	if a.ChannelID != nil && b.ChannelID != nil {
		return *a.ChannelID == *b.ChannelID
	}
	if a.ConversationID != nil && b.ConversationID != nil {
		return *a.ConversationID == *b.ConversationID
	}
	return false
}

// ListMessages returns one ascending page plus a cursor for the next
// older page. Roots carry reaction groups and thread aggregates; thread
// listings carry reactions only.
func (s *Service) ListMessages(ctx context.Context, session Session, input ListMessagesInput) (map[string]any, error) {
	workspaceID, err := s.containerWorkspace(ctx, input.ChannelID, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveContainer(ctx, session, workspaceID, input.ChannelID, input.ConversationID); err != nil {
		return nil, err
	}
	if input.ParentMessageID != "" {
		parent, err := s.store.GetMessage(ctx, input.ParentMessageID)
		if err != nil {
			return nil, err
		}
		if parent.WorkspaceID != workspaceID {
			return nil, errNotFound
		}
	}

	limit := input.Limit
	if limit <= 0 || limit > 200 {
		limit = defaultMessagePageSize
	}
	page, err := s.store.ListMessages(ctx, store.MessageFilter{
		ChannelID:       input.ChannelID,
		ConversationID:  input.ConversationID,
		ParentMessageID: input.ParentMessageID,
		BeforeID:        input.Cursor,
		Limit:           limit,
	})
	if err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(page) == limit {
		// The page came back newest first, so the last row is the oldest.
		nextCursor = page[len(page)-1].ID
	}

	// Flip to ascending for display.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	items, err := s.decorateMessages(ctx, page, input.ParentMessageID == "")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"messages":   items,
		"groups":     groupMessages(items, page),
		"nextCursor": nextCursor,
	}, nil
}

func (s *Service) containerWorkspace(ctx context.Context, channelID, conversationID string) (string, error) {
	if channelID != "" {
		channel, err := s.store.GetChannel(ctx, channelID)
		if err != nil {
			return "", err
		}
		return channel.WorkspaceID, nil
	}
	if conversationID != "" {
		conversation, err := s.store.GetConversation(ctx, conversationID)
		if err != nil {
			return "", err
		}
		return conversation.WorkspaceID, nil
	}
	return "", validationError("exactly one of channelId and conversationId is required")
}

// decorateMessages attaches reaction groups, and for root listings the
// thread reply aggregates.
func (s *Service) decorateMessages(ctx context.Context, messages []store.Message, withThreads bool) ([]map[string]any, error) {
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
	}

	reactionsByMessage := make(map[string][]map[string]any)
	groups, err := s.store.ListReactionGroups(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		reactionsByMessage[group.MessageID] = append(reactionsByMessage[group.MessageID], map[string]any{
			"value":     group.Value,
			"count":     group.Count,
			"memberIds": group.MemberIDs,
		})
	}

	threadsByParent := make(map[string]store.ThreadSummary)
	if withThreads {
		summaries, err := s.store.ListThreadSummaries(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, summary := range summaries {
			threadsByParent[summary.ParentMessageID] = summary
		}
	}

	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		item := messageJSON(message)
		reactions := reactionsByMessage[message.ID]
		if reactions == nil {
			reactions = []map[string]any{}
		}
		item["reactions"] = reactions
		if summary, ok := threadsByParent[message.ID]; ok {
			item["thread"] = map[string]any{
				"replyCount":      summary.ReplyCount,
				"lastReplyAuthor": summary.LastReplyAuthor,
				"lastReplyAt":     summary.LastReplyAt.Format(time.RFC3339),
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// groupMessages buckets an ascending page by calendar date and marks
// messages that continue a same-author run within the compact window.
// Purely derived; nothing here is ever stored.
func groupMessages(items []map[string]any, messages []store.Message) []map[string]any {
	buckets := make([]map[string]any, 0)
	var currentDate string
	var current []map[string]any

	flush := func() {
		if currentDate == "" {
			return
		}
		buckets = append(buckets, map[string]any{
			"date":     currentDate,
			"messages": current,
		})
	}

	for i, message := range messages {
		date := message.CreatedAt.Format("2006-01-02")
		if date != currentDate {
			flush()
			currentDate = date
			current = nil
		}
		compact := false
		if len(current) > 0 {
			prev := messages[i-1]
			sameAuthor := prev.MemberID == message.MemberID
			closeEnough := message.CreatedAt.Sub(prev.CreatedAt) <= compactWindow
			// Thread parents always render full headers.
			compact = sameAuthor && closeEnough && message.ParentMessageID == nil && prev.ParentMessageID == nil
		}
		item := items[i]
		item["isCompact"] = compact
		current = append(current, item)
	}
	flush()
	return buckets
}

// GetMessage returns one message with its reactions and, for roots, the
// thread aggregate.
func (s *Service) GetMessage(ctx context.Context, session Session, messageID string) (map[string]any, error) {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberFor(ctx, message.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errNotFound
	}
	items, err := s.decorateMessages(ctx, []store.Message{message}, message.ParentMessageID == nil)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

func (s *Service) EditMessage(ctx context.Context, session Session, messageID, body string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError("body is required")
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	member, err := s.requireMember(ctx, message.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if message.MemberID != member.ID {
		return nil, forbiddenError("Only the author can edit a message")
	}
	if err := s.store.UpdateMessageBody(ctx, messageID, body); err != nil {
		return nil, err
	}
	updated, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return messageJSON(updated), nil
}

func (s *Service) DeleteMessage(ctx context.Context, session Session, messageID string) error {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	member, err := s.requireMember(ctx, message.WorkspaceID, session.UserID)
	if err != nil {
		return err
	}
	if message.MemberID != member.ID {
		return forbiddenError("Only the author can delete a message")
	}
	if message.Image != nil && s.blobs != nil {
		if err := s.blobs.Delete(ctx, *message.Image); err != nil {
			return err
		}
	}
	return s.store.DeleteMessage(ctx, messageID)
}

// ToggleReaction adds the caller's reaction or removes it when already
// present.
func (s *Service) ToggleReaction(ctx context.Context, session Session, messageID, value string) (map[string]any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, validationError("value is required")
	}
	if len([]rune(value)) > 8 {
		return nil, validationError("value is too long")
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	member, err := s.requireMember(ctx, message.WorkspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	added, err := s.store.ToggleReaction(ctx, util.NewID("rct"), messageID, member.ID, value)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"messageId": messageID,
		"value":     value,
		"added":     added,
	}, nil
}
