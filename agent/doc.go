// Package agent implements the agent container and its brain. An Agent
// composes exactly one Brain, one Memory facade and one Tool Manager under a
// single identity, owns a FIFO inbox and an outbox, and never touches
// another agent's internals: all inter-agent interaction goes through
// messages delivered by the workforce router.
package agent
