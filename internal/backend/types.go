package backend

// ChatRequest is the body of POST /chat. A nil Category means "all categories".
type ChatRequest struct {
	Message  string  `json:"message"`
	Category *string `json:"category"`
}

type Resource struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Address  string  `json:"address,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Score    float64 `json:"score"`
}

type ChatResponse struct {
	Query          string     `json:"query"`
	Response       string     `json:"response"`
	ResourcesFound int        `json:"resources_found"`
	TopResources   []Resource `json:"top_resources"`
	Timestamp      string     `json:"timestamp"`
	AudioURL       string     `json:"audio_url,omitempty"`
}

type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Model string `json:"model"`
}

type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type Stats struct {
	TotalResources    int            `json:"total_resources"`
	Categories        int            `json:"categories"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	LastUpdated       string         `json:"last_updated"`
}

// Overview bundles the read-only backend endpoints fetched when a client connects.
// Fields are left empty when the matching call fails.
type Overview struct {
	Health     *Health    `json:"health,omitempty"`
	Categories []Category `json:"categories"`
	Stats      *Stats     `json:"stats,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}
