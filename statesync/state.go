package statesync

import (
	"encoding/json"
	"fmt"
)

// Session state keys written by the merge policy.
const (
	KeyRAGResults    = "rag_results"
	KeyStudentInfo   = "student_info"
	KeyStyleSelected = "style_selected"
	KeyCurrentStyle  = "current_style"
)

// StudentInfo identifies the curriculum context and question of a student.
type StudentInfo struct {
	Board    string `json:"board"`
	Grade    string `json:"grade"`
	Subject  string `json:"subject"`
	Question string `json:"question"`
}

// AsMap returns the state representation of the record.
func (s StudentInfo) AsMap() map[string]any {
	return map[string]any{
		"board":    s.Board,
		"grade":    s.Grade,
		"subject":  s.Subject,
		"question": s.Question,
	}
}

// RetrievalSummary is the compact form of a retrieval response kept in state.
type RetrievalSummary struct {
	Summary string `json:"summary"`
	Count   int    `json:"count"`
	Status  string `json:"status"`
}

// AsMap returns the state representation of the summary.
func (r RetrievalSummary) AsMap() map[string]any {
	return map[string]any{
		"summary": r.Summary,
		"count":   r.Count,
		"status":  r.Status,
	}
}

// SessionState is a typed view over the four state keys. Nil fields are absent.
type SessionState struct {
	RAGResults    any          `json:"rag_results"`
	StudentInfo   *StudentInfo `json:"student_info"`
	StyleSelected *bool        `json:"style_selected"`
	CurrentStyle  *string      `json:"current_style"`
}

// ReadState decodes the state keys from a raw session state map. Values that
// cannot be decoded are treated as absent.
func ReadState(state map[string]any) SessionState {
	var s SessionState
	if v, ok := state[KeyRAGResults]; ok {
		s.RAGResults = v
	}
	if v, ok := state[KeyStudentInfo]; ok {
		if info, err := DecodeStudentInfo(v); err == nil {
			s.StudentInfo = &info
		}
	}
	if v, ok := state[KeyStyleSelected].(bool); ok {
		s.StyleSelected = &v
	}
	if v, ok := state[KeyCurrentStyle].(string); ok {
		s.CurrentStyle = &v
	}
	return s
}

// AsMap renders the state keys with nil for absent values.
func (s SessionState) AsMap() map[string]any {
	out := map[string]any{
		KeyRAGResults:    s.RAGResults,
		KeyStudentInfo:   nil,
		KeyStyleSelected: nil,
		KeyCurrentStyle:  nil,
	}
	if s.StudentInfo != nil {
		out[KeyStudentInfo] = s.StudentInfo.AsMap()
	}
	if s.StyleSelected != nil {
		out[KeyStyleSelected] = *s.StyleSelected
	}
	if s.CurrentStyle != nil {
		out[KeyCurrentStyle] = *s.CurrentStyle
	}
	return out
}

// DecodeStudentInfo converts a stored student_info value back into a record.
func DecodeStudentInfo(v any) (StudentInfo, error) {
	switch t := v.(type) {
	case StudentInfo:
		return t, nil
	case *StudentInfo:
		if t == nil {
			return StudentInfo{}, fmt.Errorf("nil student info")
		}
		return *t, nil
	}
	var info StudentInfo
	if err := remarshal(v, &info); err != nil {
		return StudentInfo{}, fmt.Errorf("decode student info: %w", err)
	}
	return info, nil
}

// DecodeRetrievalSummary converts a stored rag_results value into a summary.
// It fails for raw retrieval responses, which carry no summary field.
func DecodeRetrievalSummary(v any) (RetrievalSummary, error) {
	if s, ok := v.(RetrievalSummary); ok {
		return s, nil
	}
	m, ok := toMap(v)
	if !ok {
		return RetrievalSummary{}, fmt.Errorf("rag_results is %T, not a mapping", v)
	}
	if _, ok := m["summary"]; !ok {
		return RetrievalSummary{}, fmt.Errorf("rag_results has no summary")
	}
	var s RetrievalSummary
	if err := remarshal(m, &s); err != nil {
		return RetrievalSummary{}, fmt.Errorf("decode retrieval summary: %w", err)
	}
	return s, nil
}

func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// toMap normalizes mapping-shaped values. Structs and types exposing AsMap
// are converted; other values report false.
func toMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return t, true
	case interface{ AsMap() map[string]any }:
		return t.AsMap(), true
	case string, []byte, bool, float64, float32, int, int64, int32:
		return nil, false
	}
	var m map[string]any
	if err := remarshal(v, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// toSlice normalizes sequence-shaped values.
func toSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	case nil, string, map[string]any:
		return nil, false
	}
	var s []any
	if err := remarshal(v, &s); err != nil {
		return nil, false
	}
	return s, true
}
