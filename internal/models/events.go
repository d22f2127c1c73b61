package models

// Envelope is the wire frame for every websocket event, inbound and outbound.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound event types.
const (
	EventJoinSession  = "join-session"
	EventCodeUpdate   = "code-update"
	EventSubmitAnswer = "submit-answer"
)

// Outbound event types.
const (
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventCodeChanged      = "code-changed"
	EventSubmissionResult = "submission-result"
	EventError            = "error"
)

// JoinSessionRequest is the payload of a join-session event.
type JoinSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// SubmitRequest is the payload of a submit-answer event.
type SubmitRequest struct {
	SessionID  string `json:"sessionId"`
	QuestionID string `json:"questionId"`
	UserID     string `json:"userId"`
	Code       string `json:"code"`
	Language   string `json:"language"`
}

// UserEvent is the payload of user-joined and user-left events.
type UserEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// CodeChanged is the payload broadcast to everyone but the typist.
type CodeChanged struct {
	QuestionID string `json:"questionId"`
	UserID     string `json:"userId"`
	Code       string `json:"code"`
}

// SubmissionResult is the verdict payload, delivered to the whole room
// including the submitter.
type SubmissionResult struct {
	SubmissionID string           `json:"submissionId"`
	QuestionID   string           `json:"questionId"`
	UserID       string           `json:"userId"`
	Status       SubmissionStatus `json:"status"`
	Results      []TestResult     `json:"results"`
}
