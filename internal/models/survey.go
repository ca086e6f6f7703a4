package models

// SurveyIcon is the glyph used to render rating options.
type SurveyIcon string

const (
	SurveyIconStar  SurveyIcon = "star"
	SurveyIconHeart SurveyIcon = "heart"
)

// Valid reports whether the icon is one of the known glyphs.
func (i SurveyIcon) Valid() bool {
	return i == SurveyIconStar || i == SurveyIconHeart
}

// SurveyVote is one rating. UserID is nil on anonymous surveys.
type SurveyVote struct {
	UserID *string `json:"user_id,omitempty"`
	Option int     `json:"option"`
}

// Survey is a numeric rating activity record (ratings 1..OptionsQty).
type Survey struct {
	ActivityBase
	Question         string       `json:"question"`
	Icon             SurveyIcon   `json:"icon"`
	OptionsQty       int          `json:"options_qty"`
	Anonymous        bool         `json:"anonymous"`
	UserIDsThatVoted []string     `json:"user_ids_that_voted"`
	Votes            []SurveyVote `json:"votes"`
}
