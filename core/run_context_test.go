package core

import "testing"

func TestRunContext_EmitEventMergesState(t *testing.T) {
	rc, emitCh := newRunContextForTest()
	rc.SetState("foo", "bar")
	ev := NewEvent("", "agent1")
	if err := rc.EmitEvent(ev); err != nil {
		t.Fatalf("EmitEvent error: %v", err)
	}
	received := <-emitCh
	if received.Actions.StateDelta["foo"].(string) != "bar" {
		t.Fatalf("State delta missing: %+v", received.Actions)
	}
	if received.InvocationID != rc.RunID {
		t.Fatalf("expected invocation id %s, got %s", rc.RunID, received.InvocationID)
	}
	if len(rc.StateDelta) != 0 {
		t.Fatal("StateDelta should clear after emit")
	}
}

func TestRunContext_CommitStateDelta(t *testing.T) {
	rc, _ := newRunContextForTest()
	store := rc.SessionStore.(*mockSessionStore)
	rc.SetState("k1", 123)
	if err := rc.CommitStateDelta(); err != nil {
		t.Fatalf("CommitStateDelta error: %v", err)
	}
	if store.applied[rc.SessionID]["k1"].(int) != 123 {
		t.Fatalf("State delta not applied: %+v", store.applied)
	}
	if len(rc.StateDelta) != 0 {
		t.Error("StateDelta should be cleared after commit")
	}
}

func TestRunContext_StateOverlay(t *testing.T) {
	rc, _ := newRunContextForTest()
	rc.Session.SetState("a", 1)
	rc.SetState("a", 2)
	rc.SetState("b", 3)

	state := rc.State()
	if state["a"].(int) != 2 || state["b"].(int) != 3 {
		t.Fatalf("unexpected overlay: %+v", state)
	}
	if v, _ := rc.Session.GetState("a"); v.(int) != 1 {
		t.Fatal("overlay must not mutate the session")
	}
}

func TestRunContext_CloneIsolation(t *testing.T) {
	rc, _ := newRunContextForTest()
	rc.SetState("a", 1)
	clone := rc.Clone()
	if clone.Session != rc.Session {
		t.Error("Session pointer should be shared")
	}
	clone.SetState("b", 2)
	if _, exists := rc.StateDelta["b"]; exists {
		t.Error("Original should not have clone's new state")
	}
	if v, _ := clone.GetState("a"); v.(int) != 1 {
		t.Error("Clone missing original state")
	}
}

func TestRunContext_WithAgentBranch(t *testing.T) {
	rc, _ := newRunContextForTest()
	child := rc.WithAgent(AgentInfo{Name: "Child", Type: "model"})
	grandchild := child.WithAgent(AgentInfo{Name: "Leaf", Type: "model"})
	if child.Branch != "Child" || grandchild.Branch != "Child.Leaf" {
		t.Errorf("unexpected branches %q %q", child.Branch, grandchild.Branch)
	}
	if rc.Branch != "" || rc.Agent.Name != "Agent1" {
		t.Error("original context should remain unchanged")
	}
}

func TestRunContext_UserTextAndMemory(t *testing.T) {
	rc, _ := newRunContextForTest()
	if rc.UserText() != "CBSE-grade-10-Mathematics. Question: What is a fraction?" {
		t.Fatalf("unexpected user text %q", rc.UserText())
	}
	res, err := rc.SearchMemory("fractions", 5)
	if err != nil || len(res) != 1 {
		t.Fatalf("SearchMemory: %v %+v", err, res)
	}
}

func TestModelLimiter(t *testing.T) {
	ml := NewModelLimiter(2)
	if err := ml.Increment(); err != nil {
		t.Fatal(err)
	}
	if ml.Remaining() != 1 {
		t.Fatalf("expected 1 remaining, got %d", ml.Remaining())
	}
	_ = ml.Increment()
	if err := ml.Increment(); err == nil {
		t.Fatal("expected limit error")
	}
	if ml.Remaining() != 0 || ml.Count() != 3 {
		t.Fatalf("unexpected counters remaining=%d count=%d", ml.Remaining(), ml.Count())
	}
	if NewModelLimiter(0).Remaining() != -1 {
		t.Fatal("zero limit should be unlimited")
	}
}
