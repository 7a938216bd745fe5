package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"huddle/api/internal/store"
)

func channelMessage(id, memberID string, channelID string, createdAt time.Time) store.Message {
	return store.Message{
		ID:          id,
		WorkspaceID: "ws_1",
		MemberID:    memberID,
		ChannelID:   &channelID,
		Body:        "body " + id,
		CreatedAt:   createdAt,
		AuthorName:  "Avery",
	}
}

func messagesTestStore() *fakeStore {
	return &fakeStore{
		getChannelFn: func(_ context.Context, channelID string) (store.Channel, error) {
			return store.Channel{ID: channelID, WorkspaceID: "ws_1", Name: "general"}, nil
		},
	}
}

func TestCreateMessageRequiresExactlyOneContainer(t *testing.T) {
	svc, _ := newTestService(messagesTestStore())
	session := Session{UserID: "usr_1"}

	cases := []CreateMessageInput{
		{WorkspaceID: "ws_1", Body: "hi"},
		{WorkspaceID: "ws_1", ChannelID: "ch_1", ConversationID: "cnv_1", Body: "hi"},
	}
	for _, input := range cases {
		_, err := svc.CreateMessage(context.Background(), session, input)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("input %+v: expected VALIDATION_ERROR, got %v", input, err)
		}
	}
}

func TestCreateMessageRejectsReplyToReply(t *testing.T) {
	parentOfParent := "msg_root"
	channelID := "ch_1"
	fs := messagesTestStore()
	fs.getMessageFn = func(_ context.Context, messageID string) (store.Message, error) {
		return store.Message{
			ID:              messageID,
			WorkspaceID:     "ws_1",
			ChannelID:       &channelID,
			ParentMessageID: &parentOfParent,
		}, nil
	}
	svc, _ := newTestService(fs)

	_, err := svc.CreateMessage(context.Background(), Session{UserID: "usr_1"}, CreateMessageInput{
		WorkspaceID:     "ws_1",
		ChannelID:       channelID,
		ParentMessageID: "msg_reply",
		Body:            "nested",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for nested reply, got %v", err)
	}
}

func TestCreateMessageRejectsCrossContainerParent(t *testing.T) {
	otherChannel := "ch_other"
	fs := messagesTestStore()
	fs.getMessageFn = func(_ context.Context, messageID string) (store.Message, error) {
		return store.Message{ID: messageID, WorkspaceID: "ws_1", ChannelID: &otherChannel}, nil
	}
	svc, _ := newTestService(fs)

	_, err := svc.CreateMessage(context.Background(), Session{UserID: "usr_1"}, CreateMessageInput{
		WorkspaceID:     "ws_1",
		ChannelID:       "ch_1",
		ParentMessageID: "msg_parent",
		Body:            "reply",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for cross-container parent, got %v", err)
	}
}

func TestListMessagesReturnsAscendingPageWithCursor(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fs := messagesTestStore()
	var gotFilter store.MessageFilter
	fs.listMessagesFn = func(_ context.Context, filter store.MessageFilter) ([]store.Message, error) {
		gotFilter = filter
		// Newest first, a full page of two.
		return []store.Message{
			channelMessage("msg_b", "mbr_1", "ch_1", base.Add(time.Minute)),
			channelMessage("msg_a", "mbr_1", "ch_1", base),
		}, nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.ListMessages(context.Background(), Session{UserID: "usr_1"}, ListMessagesInput{
		ChannelID: "ch_1",
		Cursor:    "msg_c",
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if gotFilter.BeforeID != "msg_c" || gotFilter.Limit != 2 {
		t.Fatalf("unexpected filter: %+v", gotFilter)
	}

	items := payload["messages"].([]map[string]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(items))
	}
	if items[0]["id"] != "msg_a" || items[1]["id"] != "msg_b" {
		t.Fatalf("expected ascending order, got %v then %v", items[0]["id"], items[1]["id"])
	}
	if payload["nextCursor"] != "msg_a" {
		t.Fatalf("expected nextCursor msg_a, got %v", payload["nextCursor"])
	}
}

func TestListMessagesShortPageHasNoCursor(t *testing.T) {
	fs := messagesTestStore()
	fs.listMessagesFn = func(_ context.Context, filter store.MessageFilter) ([]store.Message, error) {
		return []store.Message{
			channelMessage("msg_a", "mbr_1", "ch_1", time.Now()),
		}, nil
	}
	svc, _ := newTestService(fs)

	payload, err := svc.ListMessages(context.Background(), Session{UserID: "usr_1"}, ListMessagesInput{
		ChannelID: "ch_1",
		Limit:     50,
	})
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if payload["nextCursor"] != "" {
		t.Fatalf("expected empty nextCursor for a short page, got %v", payload["nextCursor"])
	}
}

func TestListMessagesClampsBadLimit(t *testing.T) {
	fs := messagesTestStore()
	var gotLimit int
	fs.listMessagesFn = func(_ context.Context, filter store.MessageFilter) ([]store.Message, error) {
		gotLimit = filter.Limit
		return nil, nil
	}
	svc, _ := newTestService(fs)

	for _, limit := range []int{-1, 0, 500} {
		_, err := svc.ListMessages(context.Background(), Session{UserID: "usr_1"}, ListMessagesInput{
			ChannelID: "ch_1",
			Limit:     limit,
		})
		if err != nil {
			t.Fatalf("ListMessages(limit=%d) error = %v", limit, err)
		}
		if gotLimit != defaultMessagePageSize {
			t.Fatalf("limit %d: expected clamp to %d, got %d", limit, defaultMessagePageSize, gotLimit)
		}
	}
}

func TestGroupMessagesBucketsByDateAndCompactsRuns(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 23, 57, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)

	messages := []store.Message{
		channelMessage("msg_1", "mbr_1", "ch_1", day1),
		channelMessage("msg_2", "mbr_1", "ch_1", day1.Add(time.Minute)),
		channelMessage("msg_3", "mbr_2", "ch_1", day1.Add(2*time.Minute)),
		// Same author as msg_1/msg_2 but a new calendar day.
		channelMessage("msg_4", "mbr_1", "ch_1", day2),
		// Same author, but outside the compact window.
		channelMessage("msg_5", "mbr_1", "ch_1", day2.Add(10*time.Minute)),
	}
	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, messageJSON(message))
	}

	buckets := groupMessages(items, messages)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 date buckets, got %d", len(buckets))
	}
	if buckets[0]["date"] != "2026-03-10" || buckets[1]["date"] != "2026-03-11" {
		t.Fatalf("unexpected bucket dates: %v, %v", buckets[0]["date"], buckets[1]["date"])
	}

	first := buckets[0]["messages"].([]map[string]any)
	second := buckets[1]["messages"].([]map[string]any)
	wantCompact := map[string]bool{
		"msg_1": false,
		"msg_2": true,
		"msg_3": false,
		"msg_4": false,
		"msg_5": false,
	}
	for _, item := range append(first, second...) {
		id := item["id"].(string)
		if item["isCompact"] != wantCompact[id] {
			t.Fatalf("message %s: expected isCompact=%v, got %v", id, wantCompact[id], item["isCompact"])
		}
	}
}

func TestGroupMessagesThreadParentsNeverCompact(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	root := "msg_root"
	reply := channelMessage("msg_reply", "mbr_1", "ch_1", base.Add(time.Minute))
	reply.ParentMessageID = &root

	messages := []store.Message{
		channelMessage("msg_a", "mbr_1", "ch_1", base),
		reply,
	}
	items := []map[string]any{messageJSON(messages[0]), messageJSON(messages[1])}

	buckets := groupMessages(items, messages)
	grouped := buckets[0]["messages"].([]map[string]any)
	if grouped[1]["isCompact"] != false {
		t.Fatalf("expected thread reply to render a full header")
	}
}

func TestEditMessageRejectsNonAuthor(t *testing.T) {
	channelID := "ch_1"
	fs := messagesTestStore()
	fs.getMessageFn = func(_ context.Context, messageID string) (store.Message, error) {
		return store.Message{ID: messageID, WorkspaceID: "ws_1", MemberID: "mbr_other", ChannelID: &channelID}, nil
	}
	svc, _ := newTestService(fs)

	_, err := svc.EditMessage(context.Background(), Session{UserID: "usr_1"}, "msg_1", "edited")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for non-author edit, got %v", err)
	}
}

func TestDeleteMessageRemovesImageBlobFirst(t *testing.T) {
	channelID := "ch_1"
	image := "file_abc"
	deleted := false
	fs := messagesTestStore()
	fs.getMessageFn = func(_ context.Context, messageID string) (store.Message, error) {
		return store.Message{ID: messageID, WorkspaceID: "ws_1", MemberID: "mbr_1", ChannelID: &channelID, Image: &image}, nil
	}
	fs.deleteMessageFn = func(_ context.Context, messageID string) error {
		if !deleted {
			t.Fatalf("expected blob delete before row delete")
		}
		return nil
	}
	svc, _ := newTestService(fs)
	blobs := &fakeBlobs{}
	svc.blobs = &orderedBlobs{inner: blobs, onDelete: func() { deleted = true }}

	if err := svc.DeleteMessage(context.Background(), Session{UserID: "usr_1"}, "msg_1"); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "file_abc" {
		t.Fatalf("expected image blob deletion, got %v", blobs.deleted)
	}
}

type orderedBlobs struct {
	inner    *fakeBlobs
	onDelete func()
}

func (o *orderedBlobs) Prepare(ctx context.Context) (string, string, error) {
	return o.inner.Prepare(ctx)
}
func (o *orderedBlobs) DownloadURL(ctx context.Context, handle string) (string, error) {
	return o.inner.DownloadURL(ctx, handle)
}
func (o *orderedBlobs) Delete(ctx context.Context, handle string) error {
	o.onDelete()
	return o.inner.Delete(ctx, handle)
}

func TestToggleReactionValidatesValue(t *testing.T) {
	svc, _ := newTestService(messagesTestStore())
	session := Session{UserID: "usr_1"}

	for _, value := range []string{"", "   ", "way-too-long-value"} {
		_, err := svc.ToggleReaction(context.Background(), session, "msg_1", value)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("value %q: expected VALIDATION_ERROR, got %v", value, err)
		}
	}
}

func TestToggleReactionReportsAddedAndRemoved(t *testing.T) {
	channelID := "ch_1"
	added := true
	fs := messagesTestStore()
	fs.getMessageFn = func(_ context.Context, messageID string) (store.Message, error) {
		return store.Message{ID: messageID, WorkspaceID: "ws_1", MemberID: "mbr_1", ChannelID: &channelID}, nil
	}
	fs.toggleReactionFn = func(_ context.Context, _, _, _, _ string) (bool, error) {
		return added, nil
	}
	svc, _ := newTestService(fs)
	session := Session{UserID: "usr_1"}

	payload, err := svc.ToggleReaction(context.Background(), session, "msg_1", "👍")
	if err != nil {
		t.Fatalf("ToggleReaction() error = %v", err)
	}
	if payload["added"] != true {
		t.Fatalf("expected added=true, got %v", payload["added"])
	}

	added = false
	payload, err = svc.ToggleReaction(context.Background(), session, "msg_1", "👍")
	if err != nil {
		t.Fatalf("ToggleReaction() second call error = %v", err)
	}
	if payload["added"] != false {
		t.Fatalf("expected added=false on removal, got %v", payload["added"])
	}
}
