package tools

import (
	"context"

	"github.com/martinemde/draftloop/agentloop"
)

// AskUser lets the model request free text from the human.
func AskUser(p Prompter) agentloop.Tool {
	return agentloop.Tool{
		Name:        "askUser",
		Description: "Ask the user to provide text input. Input: prompt",
		Serial:      true,
		Run: func(ctx context.Context, input, _ string) (string, error) {
			return p.Ask(ctx, input)
		},
	}
}

// TellUser shows the human an instruction and waits for acknowledgement.
func TellUser(p Prompter) agentloop.Tool {
	return agentloop.Tool{
		Name:        "tellUser",
		Description: "Tell the user to do something. Input: prompt",
		Serial:      true,
		Run: func(ctx context.Context, input, _ string) (string, error) {
			reply, err := p.Ask(ctx, input+" (press enter to continue)")
			if err != nil {
				return "", err
			}
			if reply == "" {
				return "User acknowledged", nil
			}
			return "User replied: " + reply, nil
		},
	}
}
