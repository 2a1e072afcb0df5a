package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"todo-planner/internal/apperr"
	"todo-planner/internal/auth"
	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/service"
	"todo-planner/internal/view"
)

const (
	iconDefault   = "🟢"
	iconDone      = "✅"
	iconDue       = "⏳"
	iconToday     = "🔥"
	iconOverdue   = "⚠️"
	iconRecurring = "♻️"
	iconHigh      = "🔴"

	shortIDLen = 8
	// listLimit keeps list messages under Telegram's 4096 character cap.
	listLimit = 30
)

// fieldSeparator splits /add and /edit arguments.
const fieldSeparator = "|"

// clearField empties a field in /edit.
const clearField = "-"

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func statusIcon(t model.Task, now time.Time) string {
	if t.Done {
		return iconDone
	}
	if t.Priority == model.PriorityHigh {
		return iconHigh
	}
	switch view.StatusOf(t, now) {
	case view.StatusOverdue:
		return iconOverdue
	case view.StatusToday:
		return iconToday
	case view.StatusUpcoming:
		return iconDue
	}
	return iconDefault
}

// formatTask renders one list line with its short id.
func formatTask(t model.Task, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(statusIcon(t, now))
	sb.WriteString(" <code>#" + shortID(t.ID) + "</code> ")
	if t.IsInstance {
		sb.WriteString(iconRecurring + " ")
	}
	sb.WriteString("<b>" + html.EscapeString(t.Title) + "</b>")

	var meta []string
	if when := strings.TrimSpace(t.Date + " " + t.Time); when != "" {
		meta = append(meta, when)
	}
	if t.Repeat != model.RepeatNone && t.Repeat != "" && !t.IsInstance {
		meta = append(meta, string(t.Repeat))
	}
	if t.Priority != model.PriorityNormal {
		meta = append(meta, t.Priority.String())
	}
	if t.Category != "" {
		meta = append(meta, "<i>"+html.EscapeString(t.Category)+"</i>")
	}
	if len(meta) > 0 {
		sb.WriteString(" · " + strings.Join(meta, " · "))
	}
	if t.Notes != "" {
		sb.WriteString("\n   📝 " + html.EscapeString(shortTitle(t.Notes, 120)))
	}
	return sb.String()
}

func formatTaskList(header string, tasks []model.Task, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(header + "\n\n")
	if len(tasks) == 0 {
		sb.WriteString("Nothing here. Add a task with /add or /new.")
		return sb.String()
	}
	for i, t := range tasks {
		if i == listLimit {
			sb.WriteString(fmt.Sprintf("… and %d more", len(tasks)-listLimit))
			break
		}
		sb.WriteString(formatTask(t, now) + "\n")
	}
	return strings.TrimSpace(sb.String())
}

func formatTemplates(templates []model.Task) string {
	var sb strings.Builder
	sb.WriteString("♻️ <b>Recurring tasks</b>\n\n")
	if len(templates) == 0 {
		sb.WriteString("No recurring tasks yet. Use /add Title | date | time | weekly")
		return sb.String()
	}
	for _, t := range templates {
		sb.WriteString(fmt.Sprintf("<code>#%s</code> <b>%s</b> · %s from %s",
			shortID(t.ID), html.EscapeString(t.Title), t.Repeat, t.Date))
		if t.Time != "" {
			sb.WriteString(" at " + t.Time)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func formatAgenda(days []view.Day, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("🗓 <b>Next 7 days</b>\n")
	for _, d := range days {
		sb.WriteString("\n<b>" + clock.FormatDisplay(d.Date) + "</b>\n")
		if len(d.Tasks) == 0 {
			sb.WriteString("— free\n")
			continue
		}
		for _, t := range d.Tasks {
			sb.WriteString(formatTask(t, now) + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func formatCounts(c view.Counts) string {
	return fmt.Sprintf("📊 <b>Overview</b>\nTotal: %d\nDone: %d\nToday: %d\nOverdue: %d", c.Total, c.Done, c.Today, c.Overdue)
}

// parseListArgs reads "/tasks [filter] [sort] [search words]". Words that
// name a filter or a sort mode are taken as such; the rest is the search.
func parseListArgs(args string) view.Query {
	q := view.Query{Filter: view.FilterAll, Sort: view.SortManual}
	var search []string
	for _, word := range strings.Fields(args) {
		if f := view.ParseFilter(word); f != view.FilterAll || strings.EqualFold(word, string(view.FilterAll)) {
			q.Filter = f
			continue
		}
		if m := view.ParseSort(word); m != view.SortDueAsc || strings.EqualFold(word, string(view.SortDueAsc)) {
			q.Sort = m
			continue
		}
		search = append(search, word)
	}
	q.Search = strings.Join(search, " ")
	return q
}

// parseDateArg accepts YYYY-MM-DD, "today", "tomorrow" and "+N" days.
func parseDateArg(s string, now time.Time) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return "", nil
	case s == "today":
		return clock.DayKey(now), nil
	case s == "tomorrow":
		return clock.DayKey(now.AddDate(0, 0, 1)), nil
	case strings.HasPrefix(s, "+"):
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 0 || n > 3660 {
			return "", apperr.New(apperr.CodeInvalid, "date offset must look like +3")
		}
		return clock.DayKey(now.AddDate(0, 0, n)), nil
	case clock.ValidDay(s):
		return s, nil
	}
	return "", apperr.New(apperr.CodeInvalid, "date must be YYYY-MM-DD, today, tomorrow or +N")
}

func parseRepeatArg(s string) (model.Repeat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.RepeatNone, nil
	}
	r := model.Repeat(strings.ToLower(s))
	if !r.Valid() {
		return "", apperr.New(apperr.CodeInvalid, "repeat must be none, daily, weekly or monthly")
	}
	return r, nil
}

func parsePriorityArg(s string) (model.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "1":
		return model.PriorityNormal, nil
	case "low", "0":
		return model.PriorityLow, nil
	case "high", "2", "!":
		return model.PriorityHigh, nil
	}
	return 0, apperr.New(apperr.CodeInvalid, "priority must be low, normal or high")
}

// parseTaskArgs reads "Title | date | time | repeat | priority | category | notes".
// Only the title is required. A task with a time gets a reminder.
func parseTaskArgs(args string, now time.Time) (service.TaskInput, error) {
	fields := splitFields(args)
	in := service.TaskInput{
		Title:               fields[0],
		Repeat:              model.RepeatNone,
		Priority:            model.PriorityNormal,
		NotifyMinutesBefore: model.DefaultNotifyMinutes,
	}
	if in.Title == "" {
		return in, apperr.New(apperr.CodeInvalid, "title is required")
	}
	return applyFields(in, fields, now)
}

// editTaskArgs overlays "/edit" fields on an existing task. Empty fields keep
// the current value and "-" clears it.
func editTaskArgs(t model.Task, args string, now time.Time) (service.TaskInput, error) {
	in := service.TaskInput{
		Title:               t.Title,
		Date:                t.Date,
		Time:                t.Time,
		Priority:            t.Priority,
		Category:            t.Category,
		Notes:               t.Notes,
		Repeat:              t.Repeat,
		NotifyEnabled:       t.NotifyEnabled,
		NotifyMinutesBefore: t.NotifyMinutesBefore,
	}
	fields := splitFields(args)
	if fields[0] == clearField {
		return in, apperr.New(apperr.CodeInvalid, "title cannot be cleared")
	}
	if fields[0] != "" {
		in.Title = fields[0]
	}
	return applyFields(in, fields, now)
}

func applyFields(in service.TaskInput, fields []string, now time.Time) (service.TaskInput, error) {
	var err error
	for i := 1; i < len(fields); i++ {
		v := fields[i]
		if v == "" {
			continue
		}
		if v == clearField {
			v = ""
		}
		switch i {
		case 1:
			in.Date, err = parseDateArg(v, now)
		case 2:
			if v != "" && !clock.ValidTime(v) {
				err = apperr.New(apperr.CodeInvalid, "time must be HH:MM")
			}
			in.Time = v
			in.NotifyEnabled = v != ""
		case 3:
			in.Repeat, err = parseRepeatArg(v)
		case 4:
			in.Priority, err = parsePriorityArg(v)
		case 5:
			in.Category = v
		case 6:
			in.Notes = v
		}
		if err != nil {
			return in, err
		}
	}
	if in.NotifyEnabled && in.NotifyMinutesBefore == 0 {
		in.NotifyMinutesBefore = model.DefaultNotifyMinutes
	}
	return in, nil
}

// splitFields always returns at least one element.
func splitFields(args string) []string {
	parts := strings.Split(args, fieldSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// splitIDArgs splits "<id> rest of the line".
func splitIDArgs(args string) (string, string) {
	args = strings.TrimSpace(args)
	id, rest, _ := strings.Cut(args, " ")
	return id, strings.TrimSpace(rest)
}

// describeError turns a service error into a chat reply.
func describeError(err error) string {
	if errors.Is(err, auth.ErrInteractionRequired) {
		return "🔑 Google sign-in needed. Run <code>todoplanner lists</code> in a terminal once, then try again."
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return "❌ Something went wrong, check the logs."
	}
	switch ae.Code {
	case apperr.CodeInvalid:
		return "⚠️ " + html.EscapeString(ae.Error())
	case apperr.CodeNotFound:
		return "🤷 Task not found."
	case apperr.CodeConflict:
		return "⏳ A sync is already running."
	case apperr.CodeUnauthorized:
		return "🔑 Google rejected the credentials. Sign in again with <code>todoplanner lists</code>."
	case apperr.CodeRemote:
		return "🌐 Google Tasks request failed: " + html.EscapeString(ae.Message)
	default:
		return "⚙️ " + html.EscapeString(ae.Message)
	}
}

func formatSyncReport(r service.SyncReport) string {
	return fmt.Sprintf("🔄 <b>Sync finished</b>\nImported: %d new, %d updated\nExported: %d new, %d updated",
		r.Import.Created, r.Import.Updated, r.Export.Inserted, r.Export.Patched)
}
