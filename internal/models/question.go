package models

// QuestionState is the moderation state of a Q&A question.
type QuestionState string

const (
	QuestionToReview QuestionState = "toReview"
	QuestionNew      QuestionState = "new"
	QuestionAnswered QuestionState = "answered"
)

// QASession is a Q&A activity record. Questions live in separate records.
type QASession struct {
	ActivityBase
	Title     string `json:"title"`
	Anonymous bool   `json:"anonymous"`
	Moderated bool   `json:"moderated"`
}

// Question is an audience question belonging to a QASession (QAID).
// UserID is nil when the session is anonymous. Votes holds upvoter ids.
type Question struct {
	ID        string        `json:"id"`
	QAID      string        `json:"qa_id"`
	UserID    *string       `json:"user_id,omitempty"`
	Text      string        `json:"text"`
	CreatedAt int64         `json:"created_at"`
	Votes     []string      `json:"votes"`
	State     QuestionState `json:"state"`
}
