package models

// GlobalDefault is used for tasks the registry knows nothing about.
const GlobalDefault = "openai/gpt-3.5-turbo"

// Tiers holds the candidate lists per task, tried in order primary,
// secondary, fallback, and finally the legacy model.
type Tiers struct {
	Primary   map[Task][]string
	Secondary map[Task][]string
	Fallback  map[Task][]string
	Legacy    map[Task]string
}

// DefaultTiers returns the built-in OpenRouter model tables.
func DefaultTiers() Tiers {
	primaryBreakdown := []string{
		"openai/gpt-4o",
		"anthropic/claude-3.5-sonnet",
		"openai/gpt-4o-mini",
		"google/gemini-2.5-pro",
		"anthropic/claude-3.5-haiku",
	}
	primaryReview := []string{
		"openai/gpt-4o",
		"anthropic/claude-3.5-sonnet",
		"openai/gpt-4o-mini",
		"google/gemini-2.5-pro",
		"mistralai/mistral-large",
	}
	secondary := []string{
		"openai/gpt-3.5-turbo",
		"mistralai/mistral-large",
		"anthropic/claude-3-haiku",
		"google/gemini-2.0-flash",
		"cohere/command-r-plus",
	}
	fallback := []string{
		"mistralai/mistral-small",
		"qwen/qwen3-8b",
		"meta-llama/llama-3.1-8b-instruct",
		"deepseek/deepseek-chat",
		"deepseek/deepseek-v3-base",
	}

	t := Tiers{
		Primary: map[Task][]string{
			TaskBreakdown:  primaryBreakdown,
			TaskReviewer:   primaryReview,
			TaskFinalizer:  primaryBreakdown,
			TaskReanalyzer: primaryReview,
		},
		Secondary: map[Task][]string{},
		Fallback:  map[Task][]string{},
		Legacy: map[Task]string{
			TaskBreakdown:  "deepseek/deepseek-r1-0528-qwen3-8b:free",
			TaskReviewer:   "tngtech/deepseek-r1t2-chimera:free",
			TaskFinalizer:  "deepseek/deepseek-r1-0528-qwen3-8b:free",
			TaskReanalyzer: "openrouter/horizon-beta",
		},
	}
	for _, task := range Tasks() {
		t.Secondary[task] = secondary
		t.Fallback[task] = fallback
	}
	return t
}

// Metadata describes a model for operators choosing between them.
type Metadata struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Reliability string `json:"reliability"`
	Speed       string `json:"speed"`
	Cost        string `json:"cost"`
}

// Categories explains the metadata categories.
var Categories = map[string]string{
	"Premium":  "High-performance, most reliable models (GPT-4, Claude 3.5)",
	"Standard": "Good performance, reliable models (GPT-3.5, Mistral Large)",
	"Free":     "Free models with basic performance (Mistral Small, Qwen)",
	"Legacy":   "Current models kept for backward compatibility",
}

var metadata = map[string]Metadata{
	"openai/gpt-4o": {
		Category:    "Premium",
		Description: "Most advanced GPT model, excellent performance",
		Reliability: "Very High",
		Speed:       "Fast",
		Cost:        "High",
	},
	"anthropic/claude-3.5-sonnet": {
		Category:    "Premium",
		Description: "Excellent reasoning and analysis capabilities",
		Reliability: "Very High",
		Speed:       "Fast",
		Cost:        "High",
	},
	"openai/gpt-3.5-turbo": {
		Category:    "Standard",
		Description: "Very reliable, good performance, cost-effective",
		Reliability: "Very High",
		Speed:       "Very Fast",
		Cost:        "Medium",
	},
	"mistralai/mistral-large": {
		Category:    "Standard",
		Description: "Good reasoning, reliable performance",
		Reliability: "High",
		Speed:       "Fast",
		Cost:        "Medium",
	},
	"mistralai/mistral-small": {
		Category:    "Free",
		Description: "Basic performance, free to use",
		Reliability: "Medium",
		Speed:       "Very Fast",
		Cost:        "Free",
	},
}

// LookupMetadata returns what is known about a model id.
func LookupMetadata(model string) (Metadata, bool) {
	m, ok := metadata[model]
	return m, ok
}
