package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
	"todo-planner/internal/store"
	"todo-planner/internal/view"
)

const testChat = 42

type apiCall struct {
	method string
	form   map[string]string
}

// fakeTelegram answers Bot API calls and records them.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}
	call := apiCall{method: r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], form: map[string]string{}}
	for k, v := range r.Form {
		call.form[k] = v[0]
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch call.method {
	case "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"planner","username":"planner_bot"}}`))
	case "answerCallbackQuery":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}
}

func (f *fakeTelegram) sent(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTelegram) lastText(t *testing.T) string {
	t.Helper()
	msgs := f.sent("sendMessage")
	if len(msgs) == 0 {
		t.Fatal("no message sent")
	}
	return msgs[len(msgs)-1].form["text"]
}

type harness struct {
	bot   *Bot
	tg    *fakeTelegram
	tasks *service.TaskService
}

func newHarness(t *testing.T, chatID int64) *harness {
	t.Helper()
	tg := &fakeTelegram{}
	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)

	api, err := NewAPI("test-token", srv.URL+"/bot%s/%s", zap.NewNop())
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	blobs, err := repository.NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.Fixed(now)
	st := store.New(blobs, clk, zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	tasks := service.NewTaskService(st, clk, zap.NewNop())
	reminders := service.NewReminderService(st, NewNotifier(api, chatID), clk, zap.NewNop())

	b := New(api, Services{Tasks: tasks, Reminders: reminders}, chatID, clk, zap.NewNop())
	return &harness{bot: b, tg: tg, tasks: tasks}
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 7, FirstName: "Ann"},
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func text(chatID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7},
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text: s,
	}}
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    data,
	}}
}

func TestAddListAndToggle(t *testing.T) {
	h := newHarness(t, testChat)
	ctx := context.Background()

	h.bot.handleUpdate(ctx, command(testChat, "/add Dentist | tomorrow | 10:00 | none | high | health"))
	if got := h.tg.lastText(t); !strings.Contains(got, "Dentist") {
		t.Fatalf("add reply = %q", got)
	}
	tasks := h.tasks.List(view.Query{})
	if len(tasks) != 1 || tasks[0].Date != "2024-01-16" || !tasks[0].NotifyEnabled {
		t.Fatalf("tasks = %+v", tasks)
	}
	id := tasks[0].ID

	h.bot.handleUpdate(ctx, command(testChat, "/tasks upcoming"))
	last := h.tg.sent("sendMessage")
	markup := last[len(last)-1].form["reply_markup"]
	if !strings.Contains(markup, cbDonePrefix+id) || !strings.Contains(markup, cbDeletePrefix+id) {
		t.Errorf("list keyboard = %s", markup)
	}

	h.bot.handleUpdate(ctx, callback(testChat, cbDonePrefix+id))
	if got, _ := h.tasks.Get(id); !got.Done {
		t.Error("callback did not mark the task done")
	}
	if len(h.tg.sent("answerCallbackQuery")) != 1 {
		t.Error("callback not acknowledged")
	}

	h.bot.handleUpdate(ctx, command(testChat, "/done "+shortID(id)))
	if got, _ := h.tasks.Get(id); got.Done {
		t.Error("/done should toggle back")
	}
}

func TestDeleteSeriesFromInstance(t *testing.T) {
	h := newHarness(t, testChat)
	ctx := context.Background()

	h.bot.handleUpdate(ctx, command(testChat, "/add Gym | today | 07:00 | daily"))
	if len(h.tasks.Templates()) != 1 {
		t.Fatal("template not created")
	}
	instance := h.tasks.List(view.Query{})[0]
	if !instance.IsInstance {
		t.Fatalf("first visible task = %+v", instance)
	}

	h.bot.handleUpdate(ctx, command(testChat, "/delete "+shortID(instance.ID)))
	markup := h.tg.sent("sendMessage")[1].form["reply_markup"]
	if !strings.Contains(markup, cbSeriesPrefix+instance.ID) {
		t.Errorf("delete keyboard = %s", markup)
	}

	h.bot.handleUpdate(ctx, callback(testChat, cbSeriesPrefix+instance.ID))
	if n := len(h.tasks.List(view.Query{})) + len(h.tasks.Templates()); n != 0 {
		t.Errorf("%d records left after deleting the series", n)
	}
}

func TestConversationCreatesTask(t *testing.T) {
	h := newHarness(t, testChat)
	ctx := context.Background()

	h.bot.handleUpdate(ctx, command(testChat, "/new"))
	for _, step := range []string{"Read book", "+2", btnSkip, "weekly", "low"} {
		h.bot.handleUpdate(ctx, text(testChat, step))
	}

	templates := h.tasks.Templates()
	if len(templates) != 1 {
		t.Fatalf("templates = %+v", templates)
	}
	got := templates[0]
	if got.Title != "Read book" || got.Date != "2024-01-17" || got.Time != "" ||
		got.Repeat != model.RepeatWeekly || got.Priority != model.PriorityLow {
		t.Errorf("created = %+v", got)
	}
	if h.bot.hasConversation(7) {
		t.Error("conversation should be finished")
	}
}

func TestConversationWithoutDateStopsEarly(t *testing.T) {
	h := newHarness(t, testChat)
	ctx := context.Background()

	h.bot.handleUpdate(ctx, command(testChat, "/new"))
	h.bot.handleUpdate(ctx, text(testChat, "Someday"))
	h.bot.handleUpdate(ctx, text(testChat, btnSkip))

	tasks := h.tasks.List(view.Query{})
	if len(tasks) != 1 || tasks[0].Priority != model.PriorityNormal || tasks[0].Repeat != model.RepeatNone {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestForeignChatIgnored(t *testing.T) {
	h := newHarness(t, testChat)
	h.bot.handleUpdate(context.Background(), command(99, "/add Intruder"))
	if len(h.tasks.List(view.Query{})) != 0 || len(h.tg.sent("sendMessage")) != 0 {
		t.Error("message from another chat was handled")
	}
}

func TestSyncNotConfigured(t *testing.T) {
	h := newHarness(t, testChat)
	h.bot.handleUpdate(context.Background(), command(testChat, "/sync"))
	if got := h.tg.lastText(t); !strings.Contains(got, "not configured") {
		t.Errorf("reply = %q", got)
	}
}

func TestBackupSendsDocument(t *testing.T) {
	h := newHarness(t, testChat)
	ctx := context.Background()
	h.bot.handleUpdate(ctx, command(testChat, "/add Keep me"))
	h.bot.handleUpdate(ctx, command(testChat, "/backup"))
	docs := h.tg.sent("sendDocument")
	if len(docs) != 1 || docs[0].form["chat_id"] != "42" {
		t.Errorf("documents = %+v", docs)
	}
}

func TestResetNeedsConfirmation(t *testing.T) {
	h := newHarness(t, testChat)
	ctx := context.Background()
	h.bot.handleUpdate(ctx, command(testChat, "/add One"))
	h.bot.handleUpdate(ctx, command(testChat, "/reset"))
	if len(h.tasks.List(view.Query{})) != 1 {
		t.Fatal("reset ran without confirmation")
	}
	h.bot.handleUpdate(ctx, callback(testChat, cbResetConfirm))
	if len(h.tasks.List(view.Query{})) != 0 {
		t.Error("reset did not clear the list")
	}
}

type fakeSender struct{ sent []tgbotapi.MessageConfig }

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	if p := NewNotifier(&fakeSender{}, 0).Permission(ctx); p != service.PermissionUnsupported {
		t.Errorf("permission without chat = %s", p)
	}
	if err := NewNotifier(&fakeSender{}, 0).Notify(ctx, service.Notification{Tag: "x"}); err == nil {
		t.Error("notify without chat should fail")
	}

	sender := &fakeSender{}
	n := NewNotifier(sender, testChat)
	if p := n.Permission(ctx); p != service.PermissionGranted {
		t.Errorf("permission = %s", p)
	}
	_ = n.Notify(ctx, service.Notification{Title: "a<b", Body: "2024.01.15(Mon) 10:00", Tag: "id-1"})
	_ = n.Notify(ctx, service.Notification{Title: "Daily report", Body: "<b>raw</b>", Tag: service.DailyTagPrefix + "2024-01-15"})

	if len(sender.sent) != 2 {
		t.Fatalf("sent = %d", len(sender.sent))
	}
	if got := sender.sent[0].Text; got != "🔔 <b>a&lt;b</b>\n⏰ 2024.01.15(Mon) 10:00" {
		t.Errorf("reminder text = %q", got)
	}
	if sender.sent[1].Text != "<b>raw</b>" || sender.sent[1].ChatID != testChat {
		t.Errorf("report = %+v", sender.sent[1])
	}
}
