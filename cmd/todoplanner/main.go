package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"todo-planner/internal/app"
	"todo-planner/internal/apperr"
	"todo-planner/internal/config"
	"todo-planner/internal/logger"
	"todo-planner/internal/model"
	"todo-planner/internal/view"
)

// open loads configuration and builds the application for one command.
func open(ctx context.Context, cmd *cli.Command, opts ...app.Option) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load(cmd.Root().String("env"))
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.Log)
	a, err := app.New(ctx, cfg, log, opts...)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

// terminalPrompt asks for the Google consent code on the terminal.
func terminalPrompt(cmd *cli.Command) func(ctx context.Context, authURL string) (string, error) {
	return func(ctx context.Context, authURL string) (string, error) {
		w := cmd.Root().ErrWriter
		fmt.Fprintf(w, "Open this URL and allow access:\n\n%s\n\n"+
			"The browser then lands on a localhost page that may not load.\n"+
			"Paste its full address, or just the code parameter.\n\ncode: ", authURL)
		line, err := bufio.NewReader(cmd.Root().Reader).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("no code entered")
		}
		return code, nil
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, log, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()
	return a.Serve(ctx)
}

// withSync runs fn against the sync service with interactive sign-in.
func withSync(fn func(ctx context.Context, cmd *cli.Command, a *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, log, err := open(ctx, cmd, app.WithPrompt(terminalPrompt(cmd)))
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()
		if a.Sync == nil {
			return apperr.ErrSyncNotConfigured
		}
		return fn(ctx, cmd, a)
	}
}

func syncAll(ctx context.Context, cmd *cli.Command, a *app.App) error {
	r, err := a.Sync.Sync(ctx)
	fmt.Fprintf(cmd.Root().Writer, "imported %d new, %d updated; exported %d new, %d updated\n",
		r.Import.Created, r.Import.Updated, r.Export.Inserted, r.Export.Patched)
	return err
}

func importRemote(ctx context.Context, cmd *cli.Command, a *app.App) error {
	r, err := a.Sync.Import(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "imported %d new, %d updated\n", r.Created, r.Updated)
	return nil
}

func exportRemote(ctx context.Context, cmd *cli.Command, a *app.App) error {
	r, err := a.Sync.Export(ctx)
	fmt.Fprintf(cmd.Root().Writer, "exported %d new, %d updated\n", r.Inserted, r.Patched)
	return err
}

func listTaskLists(ctx context.Context, cmd *cli.Command, a *app.App) error {
	lists, err := a.Sync.ListTaskLists(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, l := range lists {
		fmt.Fprintf(tw, "%s\t%s\n", l.ID, l.Title)
	}
	return tw.Flush()
}

func signOut(ctx context.Context, cmd *cli.Command, a *app.App) error {
	if err := a.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, "signed out of Google Tasks")
	return nil
}

// local runs fn against the task service only.
func local(fn func(ctx context.Context, cmd *cli.Command, a *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, log, err := open(ctx, cmd)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()
		return fn(ctx, cmd, a)
	}
}

func backupTasks(_ context.Context, cmd *cli.Command, a *app.App) error {
	data, err := a.Tasks.ExportBackup()
	if err != nil {
		return err
	}
	path := cmd.Args().First()
	if path == "" || path == "-" {
		_, err = cmd.Root().Writer.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	fmt.Fprintf(cmd.Root().ErrWriter, "backup written to %s\n", path)
	return nil
}

func restoreTasks(ctx context.Context, cmd *cli.Command, a *app.App) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("usage: restore <file>")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.Root().Reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	issues, err := a.Tasks.ImportBackup(ctx, data)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		fmt.Fprintln(cmd.Root().ErrWriter, "fixed:", issue)
	}
	fmt.Fprintf(cmd.Root().Writer, "restored, %d tasks\n", a.Tasks.Counts().Total)
	return nil
}

func listTasks(_ context.Context, cmd *cli.Command, a *app.App) error {
	tasks := a.Tasks.List(view.Query{
		Filter: view.ParseFilter(cmd.String("filter")),
		Sort:   view.ParseSort(cmd.String("sort")),
		Search: cmd.String("search"),
	})
	return printTasks(cmd.Root().Writer, tasks)
}

func listTemplates(_ context.Context, cmd *cli.Command, a *app.App) error {
	return printTasks(cmd.Root().Writer, a.Tasks.Templates())
}

func printTasks(w io.Writer, tasks []model.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tDATE\tTIME\tPRIORITY\tREPEAT\tTITLE")
	for _, t := range tasks {
		done := ""
		if t.Done {
			done = "x"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, done, t.Date, t.Time, t.Priority, t.Repeat, t.Title)
	}
	return tw.Flush()
}

func main() {
	cmd := &cli.Command{
		Name:  "todoplanner",
		Usage: "Personal to-do planner with recurring tasks, a Telegram bot and Google Tasks sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Path to a .env file",
				Value:   ".env",
				Sources: cli.EnvVars("TODO_PLANNER_ENV_FILE"),
			},
		},
		Commands: []*cli.Command{
			{Name: "serve", Usage: "Run the Telegram bot with reminders and the daily report", Action: serve},
			{Name: "sync", Usage: "Import from and then export to Google Tasks", Action: withSync(syncAll)},
			{Name: "import", Usage: "Import tasks from Google Tasks", Action: withSync(importRemote)},
			{Name: "export", Usage: "Export tasks to Google Tasks", Action: withSync(exportRemote)},
			{Name: "lists", Usage: "Show Google task lists (signs in when needed)", Action: withSync(listTaskLists)},
			{Name: "signout", Usage: "Forget the stored Google token", Action: withSync(signOut)},
			{Name: "backup", Usage: "Write every task as JSON", ArgsUsage: "[file|-]", Action: local(backupTasks)},
			{Name: "restore", Usage: "Replace every task with a JSON backup", ArgsUsage: "<file|->", Action: local(restoreTasks)},
			{
				Name:   "tasks",
				Usage:  "List tasks",
				Action: local(listTasks),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "all, today, upcoming, overdue, plain or done", Value: "all"},
					&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "manual, dueAsc, dueDesc, priDesc or createdDesc", Value: "dueAsc"},
					&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "Match title, category and notes"},
				},
			},
			{Name: "templates", Usage: "List recurring task templates", Action: local(listTemplates)},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
