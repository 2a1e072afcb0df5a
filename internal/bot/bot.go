package bot

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/service"
	"todo-planner/internal/view"
)

type conversationStage int

const (
	stageTitle conversationStage = iota + 1
	stageDate
	stageTime
	stageRepeat
	stagePriority
)

const (
	cbDonePrefix    = "done:"
	cbDeletePrefix  = "delete:"
	cbConfirmPrefix = "confirm:"
	cbSeriesPrefix  = "series:"
	cbResetConfirm  = "reset:confirm"
	cbCancel        = "cancel"
)

const (
	btnSkip         = "⏭️ Skip"
	btnCancelDialog = "⏪ Cancel"
	menuNewTask     = "➕ New task"
	menuTasks       = "📋 Tasks"
	menuAgenda      = "🗓 Agenda"
	menuHelp        = "ℹ️ Help"
)

// maxBackupSize bounds restore uploads.
const maxBackupSize = 2 << 20

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

// Services groups what the bot drives. Sync may be nil when Google Tasks is
// not configured.
type Services struct {
	Tasks     *service.TaskService
	Reminders *service.ReminderService
	Sync      *service.SyncService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    *tgbotapi.BotAPI
	svc    Services
	chatID int64
	clock  clock.Clock
	log    *zap.Logger
	http   *http.Client

	conversations map[int64]*conversationState
	mu            sync.Mutex
}

// NewAPI connects to Telegram. endpoint may be empty for the public API.
func NewAPI(token, endpoint string, log *zap.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(zap.NewStdLog(log.Named("telegram"))); err != nil {
		return nil, fmt.Errorf("set telegram logger: %w", err)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("bot authorized", zap.String("account", api.Self.UserName))
	return api, nil
}

// New builds the bot. When chatID is set only that chat is served;
// otherwise any private chat is.
func New(api *tgbotapi.BotAPI, svc Services, chatID int64, clk clock.Clock, log *zap.Logger) *Bot {
	return &Bot{
		api:           api,
		svc:           svc,
		chatID:        chatID,
		clock:         clk,
		log:           log,
		http:          &http.Client{Timeout: 30 * time.Second},
		conversations: make(map[int64]*conversationState),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if cb := update.CallbackQuery; cb.Message == nil || !b.allowed(cb.Message.Chat) {
			return
		}
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error("handle callback", zap.Error(err))
		}
	case update.Message != nil:
		if !b.allowed(update.Message.Chat) {
			b.log.Debug("message from foreign chat ignored")
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error("handle message", zap.Error(err))
		}
	}
}

func (b *Bot) allowed(chat *tgbotapi.Chat) bool {
	if chat == nil {
		return false
	}
	if b.chatID != 0 {
		return chat.ID == b.chatID
	}
	return chat.IsPrivate()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.Document != nil {
		return b.handleRestore(ctx, msg)
	}

	if !msg.IsCommand() && strings.EqualFold(strings.TrimSpace(msg.Text), btnCancelDialog) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	}

	if msg.IsCommand() {
		b.log.Info("command", zap.Int64("user", msg.From.ID), zap.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Try /new to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := msg.CommandArguments()
	switch msg.Command() {
	case "start":
		return b.handleStart(msg)
	case "help":
		return b.handleHelp(msg)
	case "new":
		return b.startNewTaskConversation(msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	case "add":
		return b.handleAdd(ctx, msg.Chat.ID, args)
	case "edit":
		return b.handleEdit(ctx, msg.Chat.ID, args)
	case "tasks":
		return b.sendTaskList(msg.Chat.ID, parseListArgs(args))
	case "today":
		return b.sendTaskList(msg.Chat.ID, view.Query{Filter: view.FilterToday, Sort: view.SortDueAsc})
	case "overdue":
		return b.sendTaskList(msg.Chat.ID, view.Query{Filter: view.FilterOverdue, Sort: view.SortDueAsc})
	case "agenda":
		return b.sendText(msg.Chat.ID, formatAgenda(b.svc.Tasks.Agenda(), b.clock.Now()))
	case "templates":
		return b.sendTemplates(msg.Chat.ID)
	case "done":
		return b.handleDone(ctx, msg.Chat.ID, args)
	case "delete":
		return b.handleDelete(msg.Chat.ID, args)
	case "move":
		return b.handleMove(ctx, msg.Chat.ID, args)
	case "stats":
		return b.sendText(msg.Chat.ID, formatCounts(b.svc.Tasks.Counts()))
	case "report":
		return b.sendText(msg.Chat.ID, b.svc.Reminders.Summary())
	case "sync", "gimport", "gexport", "lists":
		return b.handleSync(ctx, msg.Chat.ID, msg.Command())
	case "backup":
		return b.handleBackup(msg.Chat.ID)
	case "reset":
		return b.sendWithReplyMarkup(msg.Chat.ID, "🧨 Delete <b>every</b> task, recurring ones included?", confirmResetKeyboard())
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your to-do list and schedule.</b>\n\n%s", html.EscapeString(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /new — add a task step by step\n" +
	"• /add Title | date | time | repeat | priority | category | notes\n" +
	"• /edit &lt;id&gt; Title | date | ... (empty keeps, - clears)\n" +
	"• /tasks [all|today|upcoming|overdue|plain|done] [manual|dueAsc|dueDesc|priDesc|createdDesc] [search]\n" +
	"• /today, /overdue, /agenda — quick views\n" +
	"• /done &lt;id&gt; — toggle done\n" +
	"• /delete &lt;id&gt; — delete a task or a recurring series\n" +
	"• /move &lt;id&gt; &lt;position&gt; — change manual order\n" +
	"• /templates — recurring tasks\n" +
	"• /stats, /report — overview and daily report\n" +
	"• /sync, /gimport, /gexport, /lists — Google Tasks\n" +
	"• /backup — download all tasks; send the file back with caption /restore\n" +
	"• /reset — delete everything\n" +
	"Dates: YYYY-MM-DD, today, tomorrow or +N."

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) error {
	if strings.TrimSpace(args) == "" {
		return b.sendText(chatID, "Usage: /add Title | 2024-05-01 | 09:30 | weekly | high | work")
	}
	input, err := parseTaskArgs(args, b.clock.Now())
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	return b.createTask(ctx, chatID, input)
}

func (b *Bot) createTask(ctx context.Context, chatID int64, input service.TaskInput) error {
	task, err := b.svc.Tasks.Create(ctx, input)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	b.log.Info("task created", zap.String("task_id", task.ID), zap.Bool("template", task.IsTemplate))
	text := "✅ Added:\n" + formatTask(task, b.clock.Now())
	if task.IsTemplate {
		text = fmt.Sprintf("♻️ Recurring task <b>%s</b> added (%s). Instances for the next 30 days are in /tasks.",
			html.EscapeString(task.Title), task.Repeat)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleEdit(ctx context.Context, chatID int64, args string) error {
	id, rest := splitIDArgs(args)
	if id == "" || rest == "" {
		return b.sendText(chatID, "Usage: /edit &lt;id&gt; Title | date | time | repeat | priority | category | notes")
	}
	task, err := b.svc.Tasks.Resolve(id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	input, err := editTaskArgs(task, rest, b.clock.Now())
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	edited, err := b.svc.Tasks.Edit(ctx, task.ID, input)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	return b.sendText(chatID, "✏️ Updated:\n"+formatTask(edited, b.clock.Now()))
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, args string) error {
	id, _ := splitIDArgs(args)
	if id == "" {
		return b.sendText(chatID, "Give the task id: /done ab12cd34")
	}
	task, err := b.svc.Tasks.Resolve(id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	return b.toggleDone(ctx, chatID, task.ID)
}

func (b *Bot) toggleDone(ctx context.Context, chatID int64, id string) error {
	task, err := b.svc.Tasks.ToggleDone(ctx, id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	verb := "↩️ Reopened"
	if task.Done {
		verb = "✅ Done"
	}
	return b.sendText(chatID, fmt.Sprintf("%s: <b>%s</b>", verb, html.EscapeString(task.Title)))
}

func (b *Bot) handleDelete(chatID int64, args string) error {
	id, _ := splitIDArgs(args)
	if id == "" {
		return b.sendText(chatID, "Give the task id: /delete ab12cd34")
	}
	task, err := b.svc.Tasks.Resolve(id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	return b.askDeleteConfirmation(chatID, task)
}

func (b *Bot) askDeleteConfirmation(chatID int64, task model.Task) error {
	text := fmt.Sprintf("🗑 Delete <b>%s</b>?", html.EscapeString(task.Title))
	if task.IsInstance {
		text += "\nIt may come back when the series is regenerated; delete the series to stop it."
	}
	return b.sendWithReplyMarkup(chatID, text, deleteKeyboard(task))
}

func (b *Bot) handleMove(ctx context.Context, chatID int64, args string) error {
	id, rest := splitIDArgs(args)
	var position int
	if _, err := fmt.Sscanf(rest, "%d", &position); id == "" || err != nil || position < 1 {
		return b.sendText(chatID, "Usage: /move &lt;id&gt; &lt;position&gt;, position starts at 1")
	}
	task, err := b.svc.Tasks.Resolve(id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	ordered := b.svc.Tasks.List(view.Query{Sort: view.SortManual})
	ids := moveID(ordered, task.ID, position)
	if err := b.svc.Tasks.Reorder(ctx, ids); err != nil {
		return b.sendText(chatID, describeError(err))
	}
	return b.sendTaskList(chatID, view.Query{Sort: view.SortManual})
}

// moveID returns the ids of tasks with id moved to the 1-based position.
func moveID(tasks []model.Task, id string, position int) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			ids = append(ids, t.ID)
		}
	}
	if position > len(ids)+1 {
		position = len(ids) + 1
	}
	ids = append(ids, "")
	copy(ids[position:], ids[position-1:])
	ids[position-1] = id
	return ids
}

func (b *Bot) handleSync(ctx context.Context, chatID int64, command string) error {
	if b.svc.Sync == nil {
		return b.sendText(chatID, "Google Tasks sync is not configured. Set GOOGLE_CLIENT_ID and GOOGLE_TASKLIST_ID.")
	}
	switch command {
	case "lists":
		lists, err := b.svc.Sync.ListTaskLists(ctx)
		if err != nil {
			return b.sendText(chatID, describeError(err))
		}
		var sb strings.Builder
		sb.WriteString("📚 <b>Task lists</b>\n")
		for _, l := range lists {
			sb.WriteString(fmt.Sprintf("• %s <code>%s</code>\n", html.EscapeString(l.Title), html.EscapeString(l.ID)))
		}
		return b.sendText(chatID, strings.TrimSpace(sb.String()))
	case "gimport":
		r, err := b.svc.Sync.Import(ctx)
		if err != nil {
			return b.sendText(chatID, describeError(err))
		}
		return b.sendText(chatID, fmt.Sprintf("⬇️ Imported: %d new, %d updated", r.Created, r.Updated))
	case "gexport":
		r, err := b.svc.Sync.Export(ctx)
		if err != nil {
			return b.sendText(chatID, describeError(err))
		}
		return b.sendText(chatID, fmt.Sprintf("⬆️ Exported: %d new, %d updated", r.Inserted, r.Patched))
	default:
		r, err := b.svc.Sync.Sync(ctx)
		if err != nil {
			return b.sendText(chatID, describeError(err))
		}
		return b.sendText(chatID, formatSyncReport(r))
	}
}

func (b *Bot) handleBackup(chatID int64) error {
	data, err := b.svc.Tasks.ExportBackup()
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	name := fmt.Sprintf("todo-backup-%s.json", clock.DayKey(b.clock.Now()))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = "Send this file back with caption /restore to load it."
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) handleRestore(ctx context.Context, msg *tgbotapi.Message) error {
	if !strings.HasPrefix(strings.TrimSpace(msg.Caption), "/restore") {
		return b.sendText(msg.Chat.ID, "To restore a backup, send the file with caption /restore.")
	}
	if msg.Document.FileSize > maxBackupSize {
		return b.sendText(msg.Chat.ID, "⚠️ Backup file is too large.")
	}
	link, err := b.api.GetFileDirectURL(msg.Document.FileID)
	if err != nil {
		return fmt.Errorf("resolve backup file: %w", err)
	}
	data, err := b.download(ctx, link)
	if err != nil {
		return fmt.Errorf("download backup: %w", err)
	}
	issues, err := b.svc.Tasks.ImportBackup(ctx, data)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	text := fmt.Sprintf("📥 Restored. %d tasks now.", b.svc.Tasks.Counts().Total)
	if len(issues) > 0 {
		text += fmt.Sprintf("\n%d fields were fixed up while loading.", len(issues))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBackupSize))
}

func (b *Bot) startNewTaskConversation(msg *tgbotapi.Message) error {
	b.setConversation(msg.From.ID, &conversationState{
		stage: stageTitle,
		input: service.TaskInput{Repeat: model.RepeatNone, Priority: model.PriorityNormal},
	})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what is it called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	skip := strings.EqualFold(text, btnSkip)
	now := b.clock.Now()
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title cannot be empty.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "📅 When? <code>2024-05-01</code>, today, tomorrow or +3.", dateKeyboard())
	case stageDate:
		if !skip {
			date, err := parseDateArg(text, now)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, describeError(err), dateKeyboard())
			}
			state.input.Date = date
		}
		if state.input.Date == "" {
			return b.finishConversation(ctx, msg)
		}
		state.stage = stageTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ At what time? <code>09:30</code>. A timed task gets a reminder.", skipKeyboard())
	case stageTime:
		if !skip {
			if !clock.ValidTime(text) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Use HH:MM, for example <code>09:30</code>.", skipKeyboard())
			}
			state.input.Time = text
			state.input.NotifyEnabled = true
			state.input.NotifyMinutesBefore = model.DefaultNotifyMinutes
		}
		state.stage = stageRepeat
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Repeat it?", repeatKeyboard())
	case stageRepeat:
		repeat, err := parseRepeatArg(text)
		if skip {
			repeat, err = model.RepeatNone, nil
		}
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, describeError(err), repeatKeyboard())
		}
		state.input.Repeat = repeat
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "❗ Priority?", priorityKeyboard())
	case stagePriority:
		priority, err := parsePriorityArg(text)
		if skip {
			priority, err = model.PriorityNormal, nil
		}
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, describeError(err), priorityKeyboard())
		}
		state.input.Priority = priority
		return b.finishConversation(ctx, msg)
	}
	return nil
}

func (b *Bot) finishConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	b.clearConversation(msg.From.ID)
	if state == nil {
		return nil
	}
	return b.createTask(ctx, msg.Chat.ID, state.input)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuNewTask:
		return true, b.startNewTaskConversation(msg)
	case menuTasks:
		return true, b.sendTaskList(msg.Chat.ID, view.Query{Sort: view.SortManual})
	case menuAgenda:
		return true, b.sendText(msg.Chat.ID, formatAgenda(b.svc.Tasks.Agenda(), b.clock.Now()))
	case menuHelp:
		return true, b.handleHelp(msg)
	}
	return false, nil
}

func (b *Bot) sendTaskList(chatID int64, q view.Query) error {
	now := b.clock.Now()
	tasks := b.svc.Tasks.List(q)

	header := fmt.Sprintf("📋 <b>Tasks</b> · %s · %s", q.Filter, q.Sort)
	if q.Filter == "" {
		header = fmt.Sprintf("📋 <b>Tasks</b> · %s · %s", view.FilterAll, q.Sort)
	}
	if q.Search != "" {
		header += " · “" + html.EscapeString(q.Search) + "”"
	}

	msg := tgbotapi.NewMessage(chatID, formatTaskList(header, tasks, now))
	msg.ParseMode = tgbotapi.ModeHTML
	if len(tasks) > 0 {
		msg.ReplyMarkup = taskListKeyboard(tasks)
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTemplates(chatID int64) error {
	templates := b.svc.Tasks.Templates()
	msg := tgbotapi.NewMessage(chatID, formatTemplates(templates))
	msg.ParseMode = tgbotapi.ModeHTML
	if len(templates) > 0 {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, t := range templates {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🗑 "+shortTitle(t.Title, 24), cbSeriesPrefix+t.ID),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", zap.Error(err))
	}

	chatID := cb.Message.Chat.ID
	data := cb.Data
	b.log.Info("callback", zap.Int64("user", cb.From.ID), zap.String("data", data))

	switch {
	case strings.HasPrefix(data, cbDonePrefix):
		return b.toggleDone(ctx, chatID, strings.TrimPrefix(data, cbDonePrefix))
	case strings.HasPrefix(data, cbDeletePrefix):
		task, err := b.svc.Tasks.Get(strings.TrimPrefix(data, cbDeletePrefix))
		if err != nil {
			return b.sendText(chatID, describeError(err))
		}
		return b.askDeleteConfirmation(chatID, task)
	case strings.HasPrefix(data, cbConfirmPrefix):
		id := strings.TrimPrefix(data, cbConfirmPrefix)
		task, err := b.svc.Tasks.Get(id)
		if err != nil {
			return b.sendText(chatID, describeError(err))
		}
		if err := b.svc.Tasks.Delete(ctx, id); err != nil {
			return b.sendText(chatID, describeError(err))
		}
		return b.sendText(chatID, fmt.Sprintf("🗑 <b>%s</b> deleted.", html.EscapeString(task.Title)))
	case strings.HasPrefix(data, cbSeriesPrefix):
		return b.deleteSeries(ctx, chatID, strings.TrimPrefix(data, cbSeriesPrefix))
	case data == cbResetConfirm:
		if err := b.svc.Tasks.Reset(ctx); err != nil {
			return b.sendText(chatID, describeError(err))
		}
		return b.sendText(chatID, "🧹 All tasks deleted.")
	case data == cbCancel:
		return b.sendText(chatID, "↩️ Nothing changed.")
	}
	return nil
}

// deleteSeries removes a template given its id or the id of one of its instances.
func (b *Bot) deleteSeries(ctx context.Context, chatID int64, id string) error {
	task, err := b.svc.Tasks.Get(id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	templateID := task.ID
	if task.IsInstance {
		templateID = task.ParentID
	}
	removed, err := b.svc.Tasks.DeleteTemplate(ctx, templateID)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Recurring series deleted with %d tasks.", removed))
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
