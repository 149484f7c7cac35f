package domain

// UserRecord is a user's cumulative trivia performance within one chat.
// Chat is the partition boundary: records never relate across chats.
type UserRecord struct {
	UserName          string         `json:"user_name"`
	Score             int            `json:"score"`
	TotalAnswered     int            `json:"total_answered"`
	WinningPercentage float64        `json:"winning_percentage"`
	Categories        map[string]int `json:"categories"`
	CurrentRound      int            `json:"current_round"`
	RoundsWon         int            `json:"rounds_won"`
}

// UserStanding is a read-side view of a UserRecord annotated with the
// user's strongest category. BestCategory is empty when the user has no
// correct answers yet.
type UserStanding struct {
	UserRecord
	BestCategory string `json:"best_category,omitempty"`
}

// AnswerEvent is the scoring signal delivered by the messaging boundary.
type AnswerEvent struct {
	ChatID         string `json:"chatId"`
	UserName       string `json:"userName"`
	SelectedOption int    `json:"selectedOption"`
	CorrectOption  int    `json:"correctOption"`
	Category       string `json:"category"`
}

// Correct reports whether the selected poll option was the right one.
func (e AnswerEvent) Correct() bool {
	return e.SelectedOption == e.CorrectOption
}

// Question is a single trivia question ready to be posted as a quiz poll.
// Answers are pre-shuffled; CorrectIndex points into Answers.
type Question struct {
	Category     string   `json:"category"`
	Difficulty   string   `json:"difficulty"`
	Prompt       string   `json:"question"`
	Answers      []string `json:"answers"`
	CorrectIndex int      `json:"correctAnswerIndex"`
}
