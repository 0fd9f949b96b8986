package model

const (
	// DefaultUserID is the identity assumed when a chat request names none.
	DefaultUserID = "anonymous"
	// DefaultThreadID is the conversation used when a chat request names none.
	DefaultThreadID = "global"
)

// ChatRequest is the body of POST /chat. Pointers distinguish a field that
// was omitted from one sent empty.
type ChatRequest struct {
	UserID   *string `json:"userId,omitempty" validate:"omitempty,max=256"`
	ThreadID *string `json:"threadId,omitempty" validate:"omitempty,max=256"`
	Message  string  `json:"message" validate:"max=100000"`
}

// Identity returns the identity token to notify, applying the default when
// the field was omitted. An explicitly empty userId yields "".
func (r *ChatRequest) Identity() string {
	if r.UserID == nil {
		return DefaultUserID
	}
	return *r.UserID
}

// Thread returns the conversation key, defaulting to DefaultThreadID.
func (r *ChatRequest) Thread() string {
	if r.ThreadID == nil || *r.ThreadID == "" {
		return DefaultThreadID
	}
	return *r.ThreadID
}

// ChatResponse is the body returned by POST /chat in every outcome.
type ChatResponse struct {
	Reply string `json:"reply"`
}
