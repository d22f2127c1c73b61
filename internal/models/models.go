package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the lifecycle state of a submission. A submission is
// created as pending and moves exactly once to passed, failed or error.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusPassed  SubmissionStatus = "passed"
	StatusFailed  SubmissionStatus = "failed"
	StatusError   SubmissionStatus = "error"
)

// Session is the authoritative record held by the session store. The hub only
// keeps an ephemeral membership view keyed by session ID.
type Session struct {
	ID          string `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description,omitempty" db:"description"`
	TeacherID   string `json:"teacherId" db:"teacher_id"`
	QuestionID  string `json:"questionId" db:"question_id"`
	IsActive    bool   `json:"isActive" db:"is_active"`
}

// Participant identifies one connection's membership in a session room.
// Never persisted; created on join, dropped on leave or disconnect.
type Participant struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Role      string `json:"role,omitempty"`
}

// CodeDelta is a transient full-code snapshot, last-write-wins per
// (session, question) pair on each recipient's view.
type CodeDelta struct {
	SessionID  string `json:"sessionId"`
	QuestionID string `json:"questionId"`
	UserID     string `json:"userId"`
	Code       string `json:"code"`
}

// Arg is one named argument of a test case. Order within TestCase.Args is the
// declared parameter order and is the order values are passed to the
// submitted function.
type Arg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TestCase is a declarative input/output fixture owned by a question.
type TestCase struct {
	Args     []Arg  `json:"-"`
	Expected string `json:"output"`
}

// testCaseWire mirrors the stored JSON shape: {"input": {...}, "output": "..."}.
type testCaseWire struct {
	Input  json.RawMessage `json:"input"`
	Output string          `json:"output"`
}

// UnmarshalJSON decodes a test case while preserving the order in which the
// input parameters appear in the JSON document. encoding/json maps would
// scramble it, so the input object is walked token by token.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	var wire testCaseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	args, err := decodeOrderedArgs(wire.Input)
	if err != nil {
		return err
	}
	tc.Args = args
	tc.Expected = wire.Output
	return nil
}

// MarshalJSON writes the input parameters back as an object in declared order.
func (tc TestCase) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"input":{`)
	for i, a := range tc.Args {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(a.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(a.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString(`},"output":`)
	out, err := json.Marshal(tc.Expected)
	if err != nil {
		return nil, err
	}
	buf.Write(out)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeOrderedArgs(raw json.RawMessage) ([]Arg, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("test case input must be an object, got %v", tok)
	}
	var args []Arg
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := keyTok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("test case input %q: %w", key, err)
		}
		args = append(args, Arg{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return args, nil
}

// Question carries the fixtures needed to grade a submission. The full record
// (prompt, markdown, etc.) lives in the question store.
type Question struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	FunctionName string     `json:"functionName"`
	TestCases    []TestCase `json:"testCases"`
}

// TestResult records the outcome of one test case invocation.
type TestResult struct {
	Input    []Arg  `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
	Passed   bool   `json:"passed"`
}

// Submission is the persisted record of one submit-answer request.
// Invariant: len(Results) equals the question's test case count unless
// Status is error, in which case Results is empty.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	QuestionID  string           `json:"questionId"`
	StudentID   string           `json:"studentId"`
	Code        string           `json:"code"`
	Language    string           `json:"language"`
	Status      SubmissionStatus `json:"status"`
	Results     []TestResult     `json:"results"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// NewSubmission creates a pending submission at dispatch time.
func NewSubmission(questionID, studentID, code, language string) *Submission {
	return &Submission{
		ID:          uuid.New(),
		QuestionID:  questionID,
		StudentID:   studentID,
		Code:        code,
		Language:    language,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}
}
