package models

// Vote is one row of a poll. UserID is nil on anonymous polls.
type Vote struct {
	UserID *string `json:"user_id,omitempty"`
	Option string  `json:"option"`
}

// Poll is a multiple-choice activity record.
type Poll struct {
	ActivityBase
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	Anonymous        bool     `json:"anonymous"`
	UserIDsThatVoted []string `json:"user_ids_that_voted"`
	Votes            []Vote   `json:"votes"`
}
