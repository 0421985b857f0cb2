// Package agentloop runs a language model through repeated
// thought/action/observation cycles until it produces an answer.
//
// Each iteration packs the newest steps of the Transcript into a bounded
// context, asks the completion backend for the next step, parses the
// labelled reply, dispatches the requested tools and decides whether to
// stop. The model speaks a plain text protocol:
//
//	Thought: I need to look at the sources
//	Action:
//	- listFiles src
//	- viewFile src/main.go
//
// and finishes with a "Final Answer:" line. Label strings are configurable
// through Labels.
//
// # Architecture
//
//   - Agent: the loop controller. It owns one Transcript and ChatHistory.
//   - WindowBuilder: selects steps newest-first under a unit budget and
//     renders them oldest-first.
//   - Parser: a line-prefix state machine plus ParseActions.
//   - Dispatcher: serial tools in order, then parallel tools as one batch.
//   - ToolRegistry: the fixed set of tools, shared read-only.
//   - EventEmitter: typed event stream for host applications.
//
// # Quick Start
//
//	registry := agentloop.MustToolRegistry(tools.ReadOnly(env, prompter)...)
//	agent, err := agentloop.New(client, registry, agentloop.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer agent.Close()
//
//	answer, err := agent.Run(ctx, "Which file defines the HTTP router?")
//
// The last iteration always runs in forced-completion mode, so Run ends
// with an answer or CouldNotFindAnswer. Only ContextOverflowError,
// ErrInterrupted and context cancellation surface as errors.
package agentloop
