// Package backup reads and writes the JSON array format used for task backups
// and for the persisted task blob.
//
// Decoding never trusts the input shape: every field is decoded on its own,
// bad or missing values fall back to safe defaults, and each fallback is
// reported as a FieldIssue so callers can surface what was repaired.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
)

// ErrNotArray is returned when the payload is valid JSON but not an array.
var ErrNotArray = errors.New("backup: payload is not a JSON array")

// FieldIssue describes one value that was replaced during decoding.
type FieldIssue struct {
	Index   int
	Field   string
	Problem string
}

func (i FieldIssue) String() string {
	return fmt.Sprintf("record %d: %s: %s", i.Index, i.Field, i.Problem)
}

// Options control values generated while decoding.
type Options struct {
	NewID func() string
	Now   time.Time
}

// Encode renders tasks as a pretty printed JSON array.
func Encode(tasks []model.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []model.Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: encode: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of task records.
func Decode(data []byte, opts Options) ([]model.Task, []FieldIssue, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		if json.Valid(trimmed) {
			return nil, nil, ErrNotArray
		}
		return nil, nil, fmt.Errorf("backup: invalid JSON")
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, nil, fmt.Errorf("backup: decode array: %w", err)
	}

	d := decoder{opts: opts}
	tasks := make([]model.Task, 0, len(raws))
	for i, raw := range raws {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			d.issue(i, "*", "not an object, skipped")
			continue
		}
		tasks = append(tasks, d.record(i, fields))
	}
	return tasks, d.issues, nil
}

type decoder struct {
	opts   Options
	issues []FieldIssue
}

func (d *decoder) issue(index int, field, problem string) {
	d.issues = append(d.issues, FieldIssue{Index: index, Field: field, Problem: problem})
}

func (d *decoder) record(i int, f map[string]json.RawMessage) model.Task {
	nowMs := d.opts.Now.UnixMilli()
	t := model.Task{}

	t.ID = strings.TrimSpace(d.str(i, f, "id"))
	if t.ID == "" {
		t.ID = d.newID()
		d.issue(i, "id", "missing, generated")
	}

	t.Title = strings.TrimSpace(d.str(i, f, "title"))
	if t.Title == "" {
		t.Title = model.UntitledTitle
		d.issue(i, "title", "blank, replaced")
	}

	t.Date = strings.TrimSpace(d.str(i, f, "date"))
	if t.Date != "" && !clock.ValidDay(t.Date) {
		d.issue(i, "date", fmt.Sprintf("invalid day %q, cleared", t.Date))
		t.Date = ""
	}
	t.Time = strings.TrimSpace(d.str(i, f, "time"))
	if t.Time != "" && !clock.ValidTime(t.Time) {
		d.issue(i, "time", fmt.Sprintf("invalid time %q, cleared", t.Time))
		t.Time = ""
	}

	t.Priority = model.PriorityNormal
	if p, ok := d.integer(i, f, "priority"); ok {
		if model.Priority(p).Valid() {
			t.Priority = model.Priority(p)
		} else {
			d.issue(i, "priority", fmt.Sprintf("unknown value %d, using normal", p))
		}
	}

	t.Category = strings.TrimSpace(d.str(i, f, "category"))
	t.Notes = d.str(i, f, "notes")

	rawRepeat := d.str(i, f, "repeat")
	t.Repeat = model.ParseRepeat(rawRepeat)
	if rawRepeat != "" && string(t.Repeat) != strings.ToLower(strings.TrimSpace(rawRepeat)) {
		d.issue(i, "repeat", fmt.Sprintf("unknown value %q, using none", rawRepeat))
	}

	if v, ok := d.boolean(i, f, "template"); ok {
		t.IsTemplate = v
	} else {
		t.IsTemplate = t.Repeat != model.RepeatNone
	}
	t.IsInstance, _ = d.boolean(i, f, "instance")
	t.ParentID = strings.TrimSpace(d.str(i, f, "parentId"))
	if t.IsTemplate && t.IsInstance {
		if t.ParentID != "" {
			t.IsTemplate = false
		} else {
			t.IsInstance = false
		}
		d.issue(i, "template", "record was both template and instance")
	}
	if t.IsTemplate && t.Repeat == model.RepeatNone {
		t.IsTemplate = false
		d.issue(i, "template", "no repeat, kept as a plain task")
	}

	t.NotifyEnabled, _ = d.boolean(i, f, "notifyEnabled")
	t.NotifyMinutesBefore = model.DefaultNotifyMinutes
	if m, ok := d.integer(i, f, "notifyMins"); ok {
		if m >= 0 {
			t.NotifyMinutesBefore = m
		} else {
			d.issue(i, "notifyMins", "negative, using default")
		}
	}
	t.Notified, _ = d.boolean(i, f, "notified")
	t.ExternalTaskID = strings.TrimSpace(d.str(i, f, "googleTaskId"))

	if o, ok := d.integer(i, f, "order"); ok {
		t.Order = o
	}
	t.Done, _ = d.boolean(i, f, "done")

	t.CreatedAt = nowMs
	if v, ok := d.integer64(i, f, "createdAt"); ok && v > 0 {
		t.CreatedAt = v
	}
	t.UpdatedAt = nowMs
	if v, ok := d.integer64(i, f, "updatedAt"); ok && v > 0 {
		t.UpdatedAt = v
	}
	return t
}

func (d *decoder) newID() string {
	if d.opts.NewID != nil {
		return d.opts.NewID()
	}
	return uuid.NewString()
}

// str accepts strings and numbers; anything else is reported and treated as empty.
func (d *decoder) str(i int, f map[string]json.RawMessage, key string) string {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	d.issue(i, key, "not a string, ignored")
	return ""
}

func (d *decoder) boolean(i int, f map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	d.issue(i, key, "not a boolean, ignored")
	return false, false
}

func (d *decoder) integer(i int, f map[string]json.RawMessage, key string) (int, bool) {
	v, ok := d.integer64(i, f, key)
	if !ok || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, false
	}
	return int(v), true
}

func (d *decoder) integer64(i int, f map[string]json.RawMessage, key string) (int64, bool) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	text := strings.TrimSpace(string(raw))
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	fv, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(fv) || math.IsInf(fv, 0) {
		d.issue(i, key, "not a number, ignored")
		return 0, false
	}
	return int64(fv), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
