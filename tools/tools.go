package tools

import "github.com/martinemde/draftloop/agentloop"

// ReadOnly returns the tools that never modify the working directory.
func ReadOnly(env *Environment, p Prompter) []agentloop.Tool {
	return []agentloop.Tool{
		FindInsideFiles(env),
		FindFileNames(env),
		ListFiles(env),
		ViewFile(env),
		AskUser(p),
		TellUser(p),
	}
}

// All returns the read-only tools plus the mutating ones, each of which
// asks p for confirmation before running. The editing tools send their
// requests through ed.
func All(env *Environment, p Prompter, ed Editor) []agentloop.Tool {
	set := append(ReadOnly(env, p),
		Copy(env, p),
		Move(env, p),
		Remove(env, p),
		Shell(env, p),
	)
	return append(set, Editing(env, p, ed)...)
}
