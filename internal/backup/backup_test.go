package backup

import (
	"errors"
	"strings"
	"testing"
	"time"

	"todo-planner/internal/model"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func testOptions() Options {
	n := 0
	return Options{
		Now: testNow,
		NewID: func() string {
			n++
			return "gen-" + string(rune('0'+n))
		},
	}
}

func hasIssue(issues []FieldIssue, field string) bool {
	for _, is := range issues {
		if is.Field == field {
			return true
		}
	}
	return false
}

func TestDecodeCoercesUnknownValues(t *testing.T) {
	data := []byte(`[
		{"title": "  water plants ", "repeat": "yearly", "priority": 7, "date": "2024-01-20"},
		{"id": "b", "title": "", "priority": "2", "repeat": "weekly", "date": "2024-01-01", "time": "9am"}
	]`)

	tasks, issues, err := Decode(data, testOptions())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}

	a := tasks[0]
	if a.ID != "gen-1" {
		t.Errorf("missing id should be generated, got %q", a.ID)
	}
	if a.Title != "water plants" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Repeat != model.RepeatNone || a.IsTemplate {
		t.Errorf("unknown repeat should coerce to none, got %q template=%v", a.Repeat, a.IsTemplate)
	}
	if a.Priority != model.PriorityNormal {
		t.Errorf("unknown priority should be normal, got %v", a.Priority)
	}
	if a.NotifyMinutesBefore != model.DefaultNotifyMinutes {
		t.Errorf("notifyMins = %d", a.NotifyMinutesBefore)
	}
	if a.CreatedAt != testNow.UnixMilli() {
		t.Errorf("createdAt = %d", a.CreatedAt)
	}

	b := tasks[1]
	if b.Title != model.UntitledTitle {
		t.Errorf("blank title = %q", b.Title)
	}
	if b.Priority != model.PriorityHigh {
		t.Errorf("numeric string priority = %v", b.Priority)
	}
	if !b.IsTemplate {
		t.Error("template should be inferred from repeat when absent")
	}
	if b.Time != "" {
		t.Errorf("invalid time should be cleared, got %q", b.Time)
	}

	for _, field := range []string{"id", "title", "repeat", "priority", "time"} {
		if !hasIssue(issues, field) {
			t.Errorf("expected an issue for %s, got %v", field, issues)
		}
	}
}

func TestDecodeRejectsNonArray(t *testing.T) {
	if _, _, err := Decode([]byte(`{"id":"x"}`), testOptions()); !errors.Is(err, ErrNotArray) {
		t.Errorf("object payload: err = %v, want ErrNotArray", err)
	}
	if _, _, err := Decode([]byte(`[{"id":`), testOptions()); err == nil {
		t.Error("truncated payload should fail")
	}
	if _, _, err := Decode([]byte(``), testOptions()); err == nil {
		t.Error("empty payload should fail")
	}
}

func TestDecodeSkipsNonObjects(t *testing.T) {
	tasks, issues, err := Decode([]byte(`[1, "x", {"id":"ok","title":"keep"}]`), testOptions())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "ok" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if len(issues) != 2 {
		t.Errorf("issues = %v", issues)
	}
}

func TestDecodeBothTemplateAndInstance(t *testing.T) {
	data := []byte(`[
		{"id":"i","title":"x","template":true,"instance":true,"parentId":"tpl"},
		{"id":"t","title":"y","template":true,"instance":true,"repeat":"daily","date":"2024-01-01"}
	]`)
	tasks, _, err := Decode(data, testOptions())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tasks[0].IsTemplate || !tasks[0].IsInstance {
		t.Errorf("record with parent should stay an instance: %+v", tasks[0])
	}
	if !tasks[1].IsTemplate || tasks[1].IsInstance {
		t.Errorf("record without parent should stay a template: %+v", tasks[1])
	}
}

func TestDecodeTemplateWithoutRepeatBecomesPlain(t *testing.T) {
	data := []byte(`[
		{"id":"a1","title":"Pay rent","date":"2024-01-20","repeat":"yearly","template":true},
		{"id":"a2","title":"Water","date":"2024-01-20","template":true}
	]`)
	tasks, issues, err := Decode(data, testOptions())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, task := range tasks {
		if task.IsTemplate || task.Repeat != model.RepeatNone || !task.Visible() {
			t.Errorf("%s should be a visible plain task: %+v", task.ID, task)
		}
	}
	if !hasIssue(issues, "template") {
		t.Errorf("expected a template issue, got %v", issues)
	}
}

func TestEncodeDecodeKeepsFields(t *testing.T) {
	in := []model.Task{{
		ID: "a", Title: "gym", Date: "2024-01-16", Time: "07:30", Priority: model.PriorityHigh,
		Category: "health", Notes: "legs", Repeat: model.RepeatNone, IsInstance: true, ParentID: "tpl",
		NotifyEnabled: true, NotifyMinutesBefore: 15, ExternalTaskID: "g1", Order: 4, Done: true,
		CreatedAt: 1700000000000, UpdatedAt: 1700000005000,
	}}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"googleTaskId": "g1"`) {
		t.Errorf("encoded payload missing googleTaskId: %s", data)
	}
	out, issues, err := Decode(data, testOptions())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}
	if out[0] != in[0] {
		t.Errorf("decoded = %+v\nwant     %+v", out[0], in[0])
	}
}

func TestEncodeNilIsEmptyArray(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("Encode(nil) = %s", data)
	}
}
