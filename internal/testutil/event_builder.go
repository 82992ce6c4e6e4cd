package testutil

import (
	"fmt"

	"github.com/hupe1980/edumesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Author("tutor").Invocation("run-1").AssistantText("hello").Build()
type EventBuilder struct {
	author        string
	invocationID  string
	id            string
	role          string
	textParts     []string
	funcCalls     []core.FunctionCall
	funcResponses []core.FunctionResponse
	partial       *bool
	customParts   []core.Part
	actions       core.EventActions
	branch        *string
}

// NewEventBuilder creates a builder with default author "agent".
func NewEventBuilder() *EventBuilder { return &EventBuilder{author: "agent"} }

// Author sets the author name for the event.
func (b *EventBuilder) Author(a string) *EventBuilder { b.author = a; return b }

// Invocation sets the invocation ID associated with the event.
func (b *EventBuilder) Invocation(id string) *EventBuilder { b.invocationID = id; return b }

// ID overrides the generated event ID.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Branch sets the branch label.
func (b *EventBuilder) Branch(br string) *EventBuilder { b.branch = &br; return b }

// Partial marks the event as a streaming chunk.
func (b *EventBuilder) Partial(p bool) *EventBuilder { b.partial = &p; return b }

// UserText appends a text part and sets the role to user.
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.role = core.RoleUser
	b.textParts = append(b.textParts, t)
	return b
}

// AssistantText appends a text part and sets the role to assistant.
func (b *EventBuilder) AssistantText(t string) *EventBuilder {
	b.role = core.RoleAssistant
	b.textParts = append(b.textParts, t)
	return b
}

// AddPart appends a custom content part.
func (b *EventBuilder) AddPart(p core.Part) *EventBuilder {
	b.customParts = append(b.customParts, p)
	return b
}

// FunctionCall adds a function call part.
func (b *EventBuilder) FunctionCall(id, name, args string) *EventBuilder {
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FunctionResponse adds a function response part.
func (b *EventBuilder) FunctionResponse(id, name string, result any, err error) *EventBuilder {
	fr := core.FunctionResponse{ID: id, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	b.funcResponses = append(b.funcResponses, fr)
	return b
}

// StateDelta attaches a state delta to the event actions.
func (b *EventBuilder) StateDelta(delta map[string]any) *EventBuilder {
	b.actions.StateDelta = delta
	return b
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.invocationID, b.author)
	if b.id != "" {
		ev.ID = b.id
	}
	ev.Branch = b.branch
	ev.Partial = b.partial
	ev.Actions = b.actions

	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls)+len(b.funcResponses)+len(b.customParts))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	for _, fr := range b.funcResponses {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
	}
	parts = append(parts, b.customParts...)

	if len(parts) > 0 {
		role := b.role
		switch {
		case role != "":
		case len(b.funcResponses) > 0:
			role = core.RoleTool
		default:
			role = core.RoleAssistant
		}
		ev.Content = &core.Content{Role: role, Parts: parts}
	}

	return ev
}

// StudentTurn formats a first turn in the BOARD-grade-GRADE-SUBJECT grammar.
func StudentTurn(board string, grade int, subject, question string) string {
	return fmt.Sprintf("%s-grade-%d-%s. Question: %s", board, grade, subject, question)
}

// RetrievalResults builds a textbook retrieval payload with one result per text.
func RetrievalResults(texts ...string) map[string]any {
	results := make([]any, len(texts))
	for i, t := range texts {
		results[i] = map[string]any{"text": t, "source": fmt.Sprintf("chapter-%d", i+1)}
	}
	return map[string]any{"results": results, "status": "success"}
}

// TutoringTurn returns the events of a complete first turn: the student
// message, the retrieval call and its response.
func TutoringTurn(runID, studentText string, texts ...string) []core.Event {
	return []core.Event{
		NewEventBuilder().Author(core.RoleUser).Invocation(runID).UserText(studentText).Build(),
		NewEventBuilder().Author("retriever").Invocation(runID).FunctionCall("call-1", "retrieve_education_textbooks", `{}`).Build(),
		NewEventBuilder().Author("retriever").Invocation(runID).FunctionResponse("call-1", "retrieve_education_textbooks", RetrievalResults(texts...), nil).Build(),
	}
}
