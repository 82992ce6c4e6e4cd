package core

import "testing"

func TestToolContext_BasicFunctionality(t *testing.T) {
	rc, _ := newRunContextForTest()
	tc := NewToolContext(rc, "test-call-id")
	if err := tc.Validate(); err != nil {
		t.Fatalf("expected valid tool context: %v", err)
	}
	if tc.SessionID() != "sess-x" || tc.RunID() != "run-x" || tc.UserID() != "student-1" {
		t.Errorf("identifier mismatch")
	}
	if tc.FunctionCallID() != "test-call-id" || tc.AgentName() != "Agent1" {
		t.Errorf("call metadata mismatch")
	}
	if tc.Logger() == nil {
		t.Errorf("expected logger")
	}
}

func TestToolContext_StateStagedUntilApplied(t *testing.T) {
	rc, _ := newRunContextForTest()
	tc := NewToolContext(rc, "call-1")
	tc.SetState("style_selected", true)

	if v, ok := tc.GetState("style_selected"); !ok || v != true {
		t.Fatalf("tool should read its own staged state")
	}
	if _, ok := rc.GetState("style_selected"); ok {
		t.Fatal("run context must not see tool state before the response event")
	}

	ev := NewFunctionResponseEvent("agent", "call-1", "f", "ok", nil)
	tc.InternalApplyActions(&ev)
	if ev.Actions.StateDelta["style_selected"] != true {
		t.Fatalf("state delta not applied: %+v", ev.Actions)
	}
}

func TestToolContext_FlowControl(t *testing.T) {
	rc, _ := newRunContextForTest()
	tc := NewToolContext(rc, "test-call-id")
	tc.SkipSummarization()
	tc.Escalate()

	ev := NewEvent("", "agent")
	tc.InternalApplyActions(&ev)
	if ev.Actions.SkipSummarization == nil || !*ev.Actions.SkipSummarization {
		t.Error("skip summarization not set")
	}
	if ev.Actions.Escalate == nil || !*ev.Actions.Escalate {
		t.Error("escalate not set")
	}
}

func TestToolContext_Memory(t *testing.T) {
	rc, _ := newRunContextForTest()
	tc := NewToolContext(rc, "test-call-id")
	res, err := tc.SearchMemory("fractions", 10)
	if err != nil || len(res) != 1 {
		t.Fatalf("search memory: %v len=%d", err, len(res))
	}

	rc.MemoryStore = nil
	if _, err := NewToolContext(rc, "c").SearchMemory("x", 1); err == nil {
		t.Fatal("expected error without memory store")
	}
}

func TestToolContext_Validation(t *testing.T) {
	if err := (&ToolContext{}).Validate(); err == nil {
		t.Error("zero context should not validate")
	}
}
