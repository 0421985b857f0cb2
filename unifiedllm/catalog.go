package unifiedllm

// DefaultModel is used when neither the request nor the adapter names one.
const DefaultModel = "gpt-3.5-turbo"

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     *int     `json:"max_output,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int { return &v }

// Models is the built-in model catalog. Entries are ordered newest first
// within a provider.
var Models = []ModelInfo{
	// OpenAI
	{
		ID: "gpt-4", Provider: "openai", DisplayName: "GPT-4",
		ContextWindow: 8192, MaxOutput: intPtr(4096),
		Aliases: []string{"4", "gpt4"},
	},
	{
		ID: "gpt-3.5-turbo", Provider: "openai", DisplayName: "GPT-3.5 Turbo",
		ContextWindow: 4096, MaxOutput: intPtr(4096),
		Aliases: []string{"3.5", "gpt3.5"},
	},

	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384),
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(8192),
		Aliases: []string{"haiku", "claude-haiku"},
	},

	// Local
	{
		ID: "fake", Provider: "fake", DisplayName: "Fake echo model",
		ContextWindow: 4096,
	},
}

// GetModelInfo returns the catalog entry for a model or alias, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ResolveModel maps an alias to its canonical model ID. Unknown names are
// returned unchanged so providers can accept models the catalog lacks.
func ResolveModel(name string) string {
	if info := GetModelInfo(name); info != nil {
		return info.ID
	}
	return name
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first model for a provider. A positive
// minContext skips models whose window is smaller.
func GetLatestModel(provider string, minContext int) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		if Models[i].ContextWindow >= minContext {
			return &Models[i]
		}
	}
	return nil
}
