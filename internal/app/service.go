package app

import (
	"context"
	"database/sql"
	"time"

	"huddle/api/internal/auth"
	"huddle/api/internal/authpw"
	"huddle/api/internal/config"
	"huddle/api/internal/rbac"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	UserEmail    string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)

	InsertWorkspace(ctx context.Context, workspace store.Workspace, ownerMember store.Member) error
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]store.Workspace, error)
	UpdateWorkspaceName(ctx context.Context, workspaceID, name string) error
	UpdateWorkspaceJoinCode(ctx context.Context, workspaceID, joinCode string) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error

	InsertMember(ctx context.Context, member store.Member) error
	FindMember(ctx context.Context, workspaceID, userID string) (*store.Member, error)
	GetMember(ctx context.Context, memberID string) (store.Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]store.Member, error)
	UpdateMemberRole(ctx context.Context, memberID, role string) error
	CountAdmins(ctx context.Context, workspaceID string) (int, error)
	DeleteMember(ctx context.Context, memberID string) error

	InsertChannel(ctx context.Context, channel store.Channel) error
	GetChannel(ctx context.Context, channelID string) (store.Channel, error)
	ListChannels(ctx context.Context, workspaceID string) ([]store.Channel, error)
	UpdateChannelName(ctx context.Context, channelID, name string) error
	DeleteChannel(ctx context.Context, channelID string) error

	EnsureConversation(ctx context.Context, conversation store.Conversation) (store.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (store.Conversation, error)

	InsertMessage(ctx context.Context, message store.Message) error
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
	ListMessages(ctx context.Context, filter store.MessageFilter) ([]store.Message, error)
	UpdateMessageBody(ctx context.Context, messageID, body string) error
	DeleteMessage(ctx context.Context, messageID string) error
	ToggleReaction(ctx context.Context, reactionID, messageID, memberID, value string) (bool, error)
	ListReactionGroups(ctx context.Context, messageIDs []string) ([]store.ReactionGroup, error)
	ListThreadSummaries(ctx context.Context, parentMessageIDs []string) ([]store.ThreadSummary, error)

	InsertTask(ctx context.Context, task store.Task) error
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	ListTasks(ctx context.Context, workspaceID string, archived bool, channelID string) ([]store.Task, error)
	UpdateTask(ctx context.Context, taskID, title string, description *string, priority string, dueDate *time.Time) error
	UpdateTaskStatus(ctx context.Context, taskID, status string, completedAt *time.Time, isArchived bool) error
	UpdateTaskAssignee(ctx context.Context, taskID string, assignedTo *string) error
	DeleteTask(ctx context.Context, taskID string) error
	InsertTaskComment(ctx context.Context, comment store.TaskComment) error
	ListTaskComments(ctx context.Context, taskID string) ([]store.TaskComment, error)
	InsertTaskAttachment(ctx context.Context, attachment store.TaskAttachment) error
	GetTaskAttachment(ctx context.Context, attachmentID string) (store.TaskAttachment, error)
	ListTaskAttachments(ctx context.Context, taskID string) ([]store.TaskAttachment, error)
	DeleteTaskAttachment(ctx context.Context, attachmentID string) error

	InsertRoom(ctx context.Context, room store.DiscussionRoom, creatorMembershipID string) error
	GetRoom(ctx context.Context, roomID string) (store.DiscussionRoom, error)
	ListRooms(ctx context.Context, workspaceID, viewerMemberID string) ([]store.DiscussionRoom, error)
	DeleteRoom(ctx context.Context, roomID string) error
	JoinRoom(ctx context.Context, membershipID, roomID, memberID string) (string, error)
	FindRoomMember(ctx context.Context, roomID, memberID string) (*store.RoomMember, error)
	InsertRoomMessage(ctx context.Context, message store.RoomMessage) error
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]store.RoomMessage, error)

	InsertNote(ctx context.Context, note store.Note) error
	GetNote(ctx context.Context, noteID string) (store.Note, error)
	ListNotes(ctx context.Context, workspaceID, channelID string) ([]store.Note, error)
	UpdateNote(ctx context.Context, noteID, title, content string, tags []string) error
	SetNotePinned(ctx context.Context, noteID string, pinned bool) error
	DeleteNote(ctx context.Context, noteID string) error
	InsertFAQ(ctx context.Context, faq store.FAQ) error
	GetFAQ(ctx context.Context, faqID string) (store.FAQ, error)
	ListFAQs(ctx context.Context, workspaceID, channelID string) ([]store.FAQ, error)
	UpvoteFAQ(ctx context.Context, faqID, memberID string) (bool, int, error)
	SetFAQPinned(ctx context.Context, faqID string, pinned bool) error
	DeleteFAQ(ctx context.Context, faqID string) error
	InsertDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListDocuments(ctx context.Context, workspaceID, channelID string) ([]store.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error

	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. The Postgres store and the Redis
// store both satisfy it; main picks one at startup.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// blobStore handles binary content. Nil when object storage is not
// configured; upload endpoints then report unavailable.
type blobStore interface {
	Prepare(ctx context.Context) (handle, uploadURL string, err error)
	DownloadURL(ctx context.Context, handle string) (string, error)
	Delete(ctx context.Context, handle string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	blobs    blobStore
	authpw   *authpw.Service
}

func New(cfg config.Config, dataStore dataStore, sessions refreshStore, blobs blobStore, pw *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		blobs:    blobs,
		authpw:   pw,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) BlobsConfigured() bool {
	return s.blobs != nil
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		// Redis sessions only carry the user id.
		full, err := s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
		user = full
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		UserEmail:    user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		UserEmail: user.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// memberFor resolves the caller's membership in a workspace. Absence means
// the caller has no standing there; what that means is the caller's call.
func (s *Service) memberFor(ctx context.Context, workspaceID, userID string) (*store.Member, error) {
	return s.store.FindMember(ctx, workspaceID, userID)
}

// requireMember is the mutation-path guard: no membership is a 403, never
// an empty result.
func (s *Service) requireMember(ctx context.Context, workspaceID, userID string) (store.Member, error) {
	member, err := s.memberFor(ctx, workspaceID, userID)
	if err != nil {
		return store.Member{}, err
	}
	if member == nil {
		return store.Member{}, forbiddenError("Not a member of this workspace")
	}
	return *member, nil
}

func (s *Service) requireAdmin(ctx context.Context, workspaceID, userID string) (store.Member, error) {
	member, err := s.requireMember(ctx, workspaceID, userID)
	if err != nil {
		return store.Member{}, err
	}
	if !rbac.IsAdmin(rbac.Role(member.Role)) {
		return store.Member{}, forbiddenError("Admin role required")
	}
	return member, nil
}

// resolveWorkspaceMember loads an entity's workspace membership for the
// caller, 404-ing when the workspace itself is gone.
func (s *Service) resolveWorkspaceMember(ctx context.Context, workspaceID, userID string) (store.Member, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return store.Member{}, err
	}
	return s.requireMember(ctx, workspaceID, userID)
}

// errNotFound hides rows the caller has no standing to see as well as rows
// that do not exist; mapError turns it into a 404 either way.
var errNotFound = sql.ErrNoRows
