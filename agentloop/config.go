package agentloop

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Labels are the line-leading section names of the text protocol.
type Labels struct {
	Request     string `yaml:"request" json:"request"`
	Thought     string `yaml:"thought" json:"thought"`
	Action      string `yaml:"action" json:"action"`
	Observation string `yaml:"observation" json:"observation"`
	FinalAnswer string `yaml:"final_answer" json:"final_answer"`
}

// DefaultLabels returns the stock label set.
func DefaultLabels() Labels {
	return Labels{
		Request:     "Request",
		Thought:     "Thought",
		Action:      "Action",
		Observation: "Observation",
		FinalAnswer: "Final Answer",
	}
}

func (l Labels) validate() error {
	seen := make(map[string]string, 5)
	for _, f := range []struct{ field, value string }{
		{"request", l.Request},
		{"thought", l.Thought},
		{"action", l.Action},
		{"observation", l.Observation},
		{"final_answer", l.FinalAnswer},
	} {
		if f.value == "" {
			return fmt.Errorf("label %s is empty", f.field)
		}
		if other, dup := seen[f.value]; dup {
			return fmt.Errorf("labels %s and %s are both %q", other, f.field, f.value)
		}
		seen[f.value] = f.field
	}
	return nil
}

// Config holds the tunables of an Agent.
type Config struct {
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"`
	UnitBudget    int    `yaml:"unit_budget" json:"unit_budget"`
	UnitCounter   string `yaml:"unit_counter" json:"unit_counter"` // "approx", "runes" or "tiktoken"
	PauseBetween  bool   `yaml:"pause_between" json:"pause_between"`
	Labels        Labels `yaml:"labels" json:"labels"`

	// StopTool is the tool name that ends action parsing. Empty disables it.
	StopTool     string   `yaml:"stop_tool" json:"stop_tool"`
	NoPauseTools []string `yaml:"no_pause_tools" json:"no_pause_tools"`

	ObservationLimits     map[string]int `yaml:"observation_limits,omitempty" json:"observation_limits,omitempty"`
	ObservationLineLimits map[string]int `yaml:"observation_line_limits,omitempty" json:"observation_line_limits,omitempty"`

	OutputFormat        string   `yaml:"output_format" json:"output_format"`
	SystemMessage       string   `yaml:"system_message,omitempty" json:"system_message,omitempty"`
	LoopDetectionWindow int      `yaml:"loop_detection_window" json:"loop_detection_window"` // 0 = disabled
	Model               string   `yaml:"model,omitempty" json:"model,omitempty"`
	Provider            string   `yaml:"provider,omitempty" json:"provider,omitempty"`
	Temperature         *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxParallel         int      `yaml:"max_parallel" json:"max_parallel"` // 0 = unlimited
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 5,
		UnitBudget:    3500,
		UnitCounter:   "approx",
		Labels:        DefaultLabels(),
		StopTool:      "create",
		NoPauseTools:  []string{"askUser"},
		OutputFormat:  "the answer to the request",
	}
}

// LoadConfig reads a YAML file over the defaults. Keys absent from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return errors.New("max_iterations must be at least 1")
	}
	if c.UnitBudget < 1 {
		return errors.New("unit_budget must be positive")
	}
	if c.MaxParallel < 0 {
		return errors.New("max_parallel must not be negative")
	}
	if c.LoopDetectionWindow < 0 {
		return errors.New("loop_detection_window must not be negative")
	}
	switch c.UnitCounter {
	case "", "approx", "runes", "tiktoken":
	default:
		return fmt.Errorf("unknown unit_counter %q", c.UnitCounter)
	}
	return c.Labels.validate()
}

func (c Config) pauseExempt(s Step) bool {
	for _, name := range c.NoPauseTools {
		if s.UsedTool(name) {
			return true
		}
	}
	return false
}
