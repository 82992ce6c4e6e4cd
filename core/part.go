package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any
	Metadata map[string]any
}

func (DataPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument payload
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
	Metadata     map[string]any
}

func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
	Metadata         map[string]any
}

func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds a single text part content for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Wire discriminators for persisted parts.
const (
	partTypeText             = "text"
	partTypeData             = "data"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

type wirePart struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// MarshalJSON encodes parts with a "type" discriminator so durable session
// stores can restore the concrete part types.
func (c Content) MarshalJSON() ([]byte, error) {
	wc := wireContent{Role: c.Role, Parts: make([]wirePart, 0, len(c.Parts))}
	for _, p := range c.Parts {
		switch pt := p.(type) {
		case TextPart:
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeText, Text: pt.Text, Metadata: pt.Metadata})
		case DataPart:
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeData, Data: pt.Data, Metadata: pt.Metadata})
		case FunctionCallPart:
			fc := pt.FunctionCall
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeFunctionCall, FunctionCall: &fc, Metadata: pt.Metadata})
		case FunctionResponsePart:
			fr := pt.FunctionResponse
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeFunctionResponse, FunctionResponse: &fr, Metadata: pt.Metadata})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(wc)
}

// UnmarshalJSON restores parts written by MarshalJSON.
func (c *Content) UnmarshalJSON(b []byte) error {
	var wc wireContent
	if err := json.Unmarshal(b, &wc); err != nil {
		return err
	}
	c.Role = wc.Role
	c.Parts = make([]Part, 0, len(wc.Parts))
	for _, wp := range wc.Parts {
		switch wp.Type {
		case partTypeText:
			c.Parts = append(c.Parts, TextPart{Text: wp.Text, Metadata: wp.Metadata})
		case partTypeData:
			c.Parts = append(c.Parts, DataPart{Data: wp.Data, Metadata: wp.Metadata})
		case partTypeFunctionCall:
			if wp.FunctionCall == nil {
				return fmt.Errorf("function_call part without payload")
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: *wp.FunctionCall, Metadata: wp.Metadata})
		case partTypeFunctionResponse:
			if wp.FunctionResponse == nil {
				return fmt.Errorf("function_response part without payload")
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: *wp.FunctionResponse, Metadata: wp.Metadata})
		default:
			return fmt.Errorf("unknown part type %q", wp.Type)
		}
	}
	return nil
}
