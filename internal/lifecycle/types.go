package lifecycle

import (
	"context"

	"moviebot/internal/models"
)

// User identifies the Telegram user behind an event
type User struct {
	ID   int64
	Name string
}

// MessageRef addresses a sent message so it can be edited later
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// NotificationKind selects how a notification is rendered
type NotificationKind string

const (
	// user facing
	KindSearchResults      NotificationKind = "search_results"
	KindNoResults          NotificationKind = "no_results"
	KindConfirmPrompt      NotificationKind = "confirm_prompt"
	KindSearchCancelled    NotificationKind = "search_cancelled"
	KindAlreadyAvailable   NotificationKind = "already_available"
	KindAlreadyRequested   NotificationKind = "already_requested"
	KindRequestSubmitted   NotificationKind = "request_submitted"
	KindRequestApproved    NotificationKind = "request_approved"
	KindRequestRejected    NotificationKind = "request_rejected"
	KindRequestFulfilled   NotificationKind = "request_fulfilled"
	KindExtraContent       NotificationKind = "extra_content"
	KindQualityChoice      NotificationKind = "quality_choice"
	KindQualityUnavailable NotificationKind = "quality_unavailable"

	// admin facing
	KindAdminNewRequest     NotificationKind = "admin_new_request"
	KindAdminChooseMethod   NotificationKind = "admin_choose_method"
	KindAdminAwaitingLink   NotificationKind = "admin_awaiting_link"
	KindAdminAwaitingUpload NotificationKind = "admin_awaiting_upload"
	KindAdminNoFileFound    NotificationKind = "admin_no_file_found"
	KindAdminUserChoosing   NotificationKind = "admin_user_choosing"
	KindAdminFulfilled      NotificationKind = "admin_fulfilled"
	KindAdminRejected       NotificationKind = "admin_rejected"
)

// ActionKind is a button offered alongside a notification
type ActionKind string

const (
	ActionSelectMovie   ActionKind = "select_movie"
	ActionNoneCorrect   ActionKind = "none_correct"
	ActionConfirm       ActionKind = "confirm"
	ActionCancel        ActionKind = "cancel"
	ActionApprove       ActionKind = "approve"
	ActionReject        ActionKind = "reject"
	ActionMethodSearch  ActionKind = "method_search"
	ActionMethodLink    ActionKind = "method_link"
	ActionMethodUpload  ActionKind = "method_upload"
	ActionSelectQuality ActionKind = "select_quality"
	ActionSendVersion   ActionKind = "send_version"
	ActionOpenLink      ActionKind = "open_link"
)

// Action describes one button. Only the fields relevant to Kind are set.
type Action struct {
	Kind      ActionKind
	Label     string
	RequestID int64
	Index     int
	MessageID int
	URL       string
}

// Notification is a rendering-neutral message for the notifier
type Notification struct {
	Kind       NotificationKind
	Request    *models.MovieRequest
	Movie      *models.Candidate
	Content    *models.ContentRef
	Candidates []models.Candidate
	Options    []models.ContentRef
	Actions    []Action
}

// Notifier delivers messages to users and the admin chat
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, n Notification) (MessageRef, error)
	NotifyAdmin(ctx context.Context, n Notification) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, n Notification) error
	DeliverContent(ctx context.Context, userID int64, content models.ContentRef) error
}

// MetadataProvider looks movies up in the metadata service
type MetadataProvider interface {
	SearchTitle(ctx context.Context, query string) ([]models.Candidate, error)
	GetDetails(ctx context.Context, tmdbID int64) (models.Candidate, error)
}

// Catalog finds content already published in the movie channel
type Catalog interface {
	FindExisting(ctx context.Context, tmdbID int64, title string) (models.CatalogEntry, bool, error)
	SearchVersions(ctx context.Context, tmdbID int64, title string) ([]models.ContentRef, error)
	ContentRef(ctx context.Context, chatID int64, messageID int) (models.ContentRef, bool, error)
}

// ContentPost is a file an admin sent to the bot for publishing
type ContentPost struct {
	FromChatID int64
	MessageID  int
	FileID     string
	FileName   string
	Caption    string
	IsMedia    bool
}

// Channel publishes content into the movie channel
type Channel interface {
	// PostContent copies post into the channel with caption and returns the new post
	PostContent(ctx context.Context, post ContentPost, caption string) (models.ContentRef, error)
}

// FulfillmentMethod is the admin's choice of how to fulfill an approved request
type FulfillmentMethod string

const (
	MethodSearch FulfillmentMethod = "search"
	MethodLink   FulfillmentMethod = "link"
	MethodUpload FulfillmentMethod = "upload"
)

// ConfirmOutcome is the result of a confirmation step
type ConfirmOutcome int

const (
	Cancelled ConfirmOutcome = iota
	AlreadyAvailable
	AlreadyRequested
	Submitted
)

func (o ConfirmOutcome) String() string {
	switch o {
	case Cancelled:
		return "cancelled"
	case AlreadyAvailable:
		return "already_available"
	case AlreadyRequested:
		return "already_requested"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

// ConfirmResult describes what OnConfirm did
type ConfirmResult struct {
	Outcome ConfirmOutcome
	Request *models.MovieRequest // set for AlreadyRequested and Submitted
	Content *models.ContentRef   // set for AlreadyAvailable
}

// MethodOutcome is the result of a fulfillment method choice
type MethodOutcome int

const (
	AwaitingLink MethodOutcome = iota
	AwaitingUpload
	NoFileFound
	Fulfilled
	AwaitingUserChoice
)

// SubmitOutcome is the result of handing content to a request
type SubmitOutcome int

const (
	FulfilledNow SubmitOutcome = iota
	ExtraAdded
	DuplicateContent
)
