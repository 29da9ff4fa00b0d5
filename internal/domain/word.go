package domain

// Word is a dictionary entry used by word-based games.
type Word struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	Language   string `json:"language"`
	Difficulty string `json:"difficulty"`
}
