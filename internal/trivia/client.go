package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"trivia-stats-service/internal/domain"
)

// Difficulty levels accepted by the Open Trivia DB API.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Category is an Open Trivia DB category identifier.
type Category int

const (
	CategoryGeneralKnowledge Category = 9
	CategoryFilm             Category = 11
	CategoryTelevision       Category = 14
	CategoryVideoGames       Category = 15
	CategoryScience          Category = 17
	CategoryMathematics      Category = 19
	CategorySports           Category = 21
	CategoryGeography        Category = 22
	CategoryHistory          Category = 23
	CategoryArt              Category = 25
	CategoryVehicles         Category = 28
)

var categories = []Category{
	CategoryGeneralKnowledge,
	CategoryFilm,
	CategoryTelevision,
	CategoryVideoGames,
	CategoryScience,
	CategoryMathematics,
	CategorySports,
	CategoryGeography,
	CategoryHistory,
	CategoryArt,
	CategoryVehicles,
}

// Client fetches questions from the Open Trivia DB API.
// No retries: a failed fetch surfaces to the caller, the scheduler simply
// tries again on its next tick.
type Client struct {
	baseURL    string
	httpClient *http.Client

	sf    singleflight.Group
	mu    sync.Mutex
	token string
	rnd   *rand.Rand
}

// NewClient builds a client for the given API base URL (e.g. https://opentdb.com).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type apiResponse struct {
	ResponseCode int `json:"response_code"`
	Results      []struct {
		Category         string   `json:"category"`
		Difficulty       string   `json:"difficulty"`
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
	} `json:"results"`
}

type tokenResponse struct {
	ResponseCode int    `json:"response_code"`
	Token        string `json:"token"`
}

// NextQuestion fetches one question for a random category and difficulty.
func (c *Client) NextQuestion(ctx context.Context) (domain.Question, error) {
	c.mu.Lock()
	category := categories[c.rnd.Intn(len(categories))]
	difficulty := difficulties[c.rnd.Intn(len(difficulties))]
	c.mu.Unlock()
	return c.Question(ctx, category, difficulty)
}

// Question fetches one question for the given category and difficulty,
// HTML-unescapes all fields and shuffles the answers.
func (c *Client) Question(ctx context.Context, category Category, difficulty Difficulty) (domain.Question, error) {
	token, err := c.sessionToken(ctx)
	if err != nil {
		// Tokens only dedupe questions across requests; fetch without one.
		token = ""
	}

	params := url.Values{}
	params.Set("amount", "1")
	params.Set("category", strconv.Itoa(int(category)))
	params.Set("difficulty", string(difficulty))
	if token != "" {
		params.Set("token", token)
	}

	var payload apiResponse
	if err := c.getJSON(ctx, c.baseURL+"/api.php?"+params.Encode(), &payload); err != nil {
		return domain.Question{}, err
	}
	if payload.ResponseCode != 0 || len(payload.Results) == 0 {
		if payload.ResponseCode == 3 || payload.ResponseCode == 4 {
			// Token expired or exhausted; a fresh one will be requested next time.
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return domain.Question{}, fmt.Errorf("%w: response code %d", domain.ErrQuestionUnavailable, payload.ResponseCode)
	}

	result := payload.Results[0]
	correct := html.UnescapeString(result.CorrectAnswer)
	answers := make([]string, 0, len(result.IncorrectAnswers)+1)
	for _, answer := range result.IncorrectAnswers {
		answers = append(answers, html.UnescapeString(answer))
	}
	answers = append(answers, correct)

	c.mu.Lock()
	c.rnd.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
	c.mu.Unlock()

	correctIndex := 0
	for i, answer := range answers {
		if answer == correct {
			correctIndex = i
			break
		}
	}

	return domain.Question{
		Category:     html.UnescapeString(result.Category),
		Difficulty:   html.UnescapeString(result.Difficulty),
		Prompt:       html.UnescapeString(result.Question),
		Answers:      answers,
		CorrectIndex: correctIndex,
	}, nil
}

// sessionToken lazily requests an API session token. Concurrent chats asking
// at the same time share one request.
func (c *Client) sessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	result, err, _ := c.sf.Do("token", func() (interface{}, error) {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		if token != "" {
			return token, nil
		}

		var payload tokenResponse
		if err := c.getJSON(ctx, c.baseURL+"/api_token.php?command=request", &payload); err != nil {
			return "", err
		}
		if payload.ResponseCode != 0 || payload.Token == "" {
			return "", fmt.Errorf("request session token: response code %d", payload.ResponseCode)
		}

		c.mu.Lock()
		c.token = payload.Token
		c.mu.Unlock()
		return payload.Token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trivia api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trivia api: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode trivia response: %w", err)
	}
	return nil
}
