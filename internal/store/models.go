package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Workspace struct {
	ID        string
	Name      string
	UserID    string
	JoinCode  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is the per-workspace identity unit. All in-workspace relations
// (messages, tasks, rooms, knowledge artifacts) reference a Member, never
// a raw User.
type Member struct {
	ID          string
	WorkspaceID string
	UserID      string
	Role        string
	CreatedAt   time.Time
	// Joined fields for API responses
	UserName  string
	UserEmail string
}

type Channel struct {
	ID          string
	WorkspaceID string
	Name        string
	CreatedAt   time.Time
}

// Conversation is a direct-message pair. At most one exists per unordered
// member pair per workspace.
type Conversation struct {
	ID          string
	WorkspaceID string
	MemberOneID string
	MemberTwoID string
	CreatedAt   time.Time
}

type Message struct {
	ID              string
	WorkspaceID     string
	MemberID        string
	ChannelID       *string
	ConversationID  *string
	ParentMessageID *string
	Body            string
	Image           *string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	// Joined fields for API responses
	AuthorName  string
	AuthorEmail string
}

// ReactionGroup aggregates reactions on one message by emoji value.
type ReactionGroup struct {
	MessageID string
	Value     string
	Count     int
	MemberIDs []string
}

// ThreadSummary is the aggregate a root message carries about its replies.
type ThreadSummary struct {
	ParentMessageID string
	ReplyCount      int
	LastReplyAuthor string
	LastReplyAt     time.Time
}

type Task struct {
	ID          string
	WorkspaceID string
	ChannelID   *string
	Title       string
	Description *string
	CreatedBy   string
	AssignedTo  *string
	Status      string
	Priority    string
	DueDate     *time.Time
	CompletedAt *time.Time
	IsArchived  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined fields for API responses
	CreatorName  string
	AssigneeName string
}

type TaskComment struct {
	ID        string
	TaskID    string
	MemberID  string
	Body      string
	CreatedAt time.Time
	// Joined fields for API responses
	AuthorName string
}

type TaskAttachment struct {
	ID        string
	TaskID    string
	MemberID  string
	Name      string
	FileID    string
	FileType  string
	FileSize  int64
	CreatedAt time.Time
}

type DiscussionRoom struct {
	ID          string
	WorkspaceID string
	Name        string
	Topic       string
	Description *string
	CreatedBy   string
	IsPrivate   bool
	MaxMembers  *int
	CreatedAt   time.Time
	// Joined fields for API responses
	CreatorName string
	MemberCount int
	IsMember    bool
}

type RoomMember struct {
	ID       string
	RoomID   string
	MemberID string
	JoinedAt time.Time
	Role     *string
	IsMuted  bool
}

type RoomMessage struct {
	ID        string
	RoomID    string
	MemberID  string
	Body      string
	Image     *string
	CreatedAt time.Time
	UpdatedAt *time.Time
	// Joined fields for API responses
	AuthorName string
}

type Note struct {
	ID          string
	WorkspaceID string
	ChannelID   *string
	Title       string
	Content     string
	CreatedBy   string
	Tags        []string
	IsPinned    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined fields for API responses
	CreatorName string
}

type FAQ struct {
	ID          string
	WorkspaceID string
	ChannelID   *string
	Question    string
	Answer      string
	CreatedBy   string
	Upvotes     int
	IsPinned    bool
	CreatedAt   time.Time
	// Joined fields for API responses
	CreatorName string
}

type Document struct {
	ID          string
	WorkspaceID string
	ChannelID   *string
	Name        string
	FileID      string
	FileType    string
	FileSize    int64
	Description *string
	UploadedBy  string
	Tags        []string
	CreatedAt   time.Time
	// Joined fields for API responses
	UploaderName string
}
