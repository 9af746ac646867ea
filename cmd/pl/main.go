package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planline/internal/app"
	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
	"planline/internal/schedule"
	"planline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline tracks personal tasks and computes realistic day-by-day schedules.
Core concepts:
- Workspace: your .planline directory holding the database; planline.yml holds config.
- Tasks: work items with estimates, priorities, deadlines, dependencies and optional subtasks.
- Optimizer: 'pl optimize' spreads pending task hours over workdays under a daily capacity,
  using one of several algorithms (see 'pl algorithms').
- Schedule: 'pl schedule' shows the committed hours per day from stored allocations.
- Event log: diary of changes, view with 'pl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(algorithmsCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are the work items. They flow pending -> in_progress -> completed (canceled/archived are exits), can depend on each other, and may be grouped under a parent task whose span the optimizer derives from its children.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskTreeCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var dependsOn []string
	var deadline string
	var hours float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.DependsOn = dependsOn
			if cmd.Flags().Changed("hours") {
				opts.EstimatedHours = &hours
			}
			if deadline != "" {
				d, err := parseDateOrTime(deadline)
				if err != nil {
					return fmt.Errorf("--deadline: %w", err)
				}
				opts.Deadline = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.Priority, "priority", 1, "priority (higher is more important)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringArrayVar(&dependsOn, "depends-on", []string{}, "dependency task id (repeatable)")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent task id")
	cmd.Flags().BoolVar(&opts.IsFixed, "fixed", false, "exclude from automatic scheduling")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Prio", "Hours", "Deadline", "Planned"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Status, t.Priority, floatOrDash(t.EstimatedHours), dayOrDash(t.Deadline), spanOrDash(t)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Parent, "parent", "", "parent task id")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var opts engine.TaskUpdateOptions
	var name, description, setParent, deadline string
	var priority int
	var hours float64
	var fixed bool
	var addDeps, removeDeps []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			opts.Force = viper.GetBool("force")
			opts.AddDeps = addDeps
			opts.RemoveDeps = removeDeps
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("hours") {
				opts.EstimatedHours = &hours
			}
			if cmd.Flags().Changed("set-parent") {
				opts.SetParent = &setParent
			}
			if cmd.Flags().Changed("fixed") {
				opts.SetFixed = &fixed
			}
			if cmd.Flags().Changed("deadline") {
				if deadline == "" {
					opts.ClearDeadline = true
				} else {
					d, err := parseDateOrTime(deadline)
					if err != nil {
						return fmt.Errorf("--deadline: %w", err)
					}
					opts.Deadline = &d
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "new status")
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (higher is more important)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD or RFC3339, empty clears)")
	cmd.Flags().StringArrayVar(&addDeps, "add-depends-on", []string{}, "add dependency")
	cmd.Flags().StringArrayVar(&removeDeps, "remove-depends-on", []string{}, "remove dependency")
	cmd.Flags().StringVar(&setParent, "set-parent", "", "set parent task id (empty for none)")
	cmd.Flags().BoolVar(&fixed, "fixed", false, "exclude from automatic scheduling")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CompleteTask(ctx, id, viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func taskTreeCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show task tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: status})
				if err != nil {
					return err
				}
				nodes := map[string][]domain.Task{}
				var roots []domain.Task
				for _, t := range tasks {
					if t.ParentID != nil {
						nodes[*t.ParentID] = append(nodes[*t.ParentID], t)
					} else {
						roots = append(roots, t)
					}
				}
				if viper.GetBool("json") {
					type Node struct {
						Task     domain.Task `json:"task"`
						Children []Node      `json:"children,omitempty"`
					}
					var build func(t domain.Task) Node
					build = func(t domain.Task) Node {
						var childNodes []Node
						for _, c := range nodes[t.ID] {
							childNodes = append(childNodes, build(c))
						}
						return Node{Task: t, Children: childNodes}
					}
					var treeNodes []Node
					for _, r := range roots {
						treeNodes = append(treeNodes, build(r))
					}
					return printJSON(treeNodes)
				}
				for _, r := range roots {
					printTaskTree(r, nodes, "", true)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "Manage task notes"}
	note.AddCommand(noteAddCmd())
	note.AddCommand(noteListCmd())
	return note
}

func noteAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <task-id> <body>",
		Short: "Add note to task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AddNote(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	return cmd
}

func noteListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List notes of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetTask(ctx, args[0]); err != nil {
					return err
				}
				notes, err := e.Repo.ListNotes(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(notes)
			})
		},
	}
	return cmd
}

func optimizeCmd() *cobra.Command {
	var req engine.OptimizeRequest
	var algorithm, start string
	var maxHours float64
	var taskIDs []string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute and store a schedule for pending tasks",
		Long:  "Spreads estimated hours of pending tasks over upcoming workdays under the daily capacity. Already scheduled tasks are kept unless --force; in-progress and fixed tasks are never moved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Algorithm = algorithm
			req.MaxHoursPerDay = maxHours
			req.TaskIDs = taskIDs
			req.ForceOverride = viper.GetBool("force")
			req.ActorID = viper.GetString("actor-id")
			if start != "" {
				d, err := parseDateOrTime(start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				req.StartDate = d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Optimize(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printOptimizeResult(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "scheduling algorithm (default from config)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD or RFC3339, default now)")
	cmd.Flags().Float64Var(&maxHours, "max-hours", 0, "daily capacity in hours (default from config)")
	cmd.Flags().StringArrayVar(&taskIDs, "task", []string{}, "restrict run to task id (repeatable)")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "random seed for genetic/monte_carlo")
	cmd.Flags().IntVar(&req.Iterations, "iterations", 0, "iteration count for monte_carlo")
	return cmd
}

func printOptimizeResult(res schedule.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Start", "End", "Hours"})
	for _, t := range res.Scheduled {
		tw.AppendRow(table.Row{t.ID, t.Name, dayOrDash(t.PlannedStart), dayOrDash(t.PlannedEnd), fmt.Sprintf("%.1f", t.AllocatedHours())})
	}
	tw.Render()
	s := res.Summary
	fmt.Printf("Scheduled: %d new, %d rescheduled, %.1f hours over %d days\n", s.NewCount, s.RescheduledCount, s.TotalHours, s.DaysSpan)
	if len(s.OverloadedDays) > 0 {
		fmt.Printf("Overloaded days: %s\n", strings.Join(s.OverloadedDays, ", "))
	}
	if len(res.Failed) > 0 {
		fmt.Printf("Unscheduled: %d\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Printf("  %s (%s): %s\n", f.TaskName, f.TaskID, f.Reason)
		}
	}
}

func algorithmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List scheduling algorithms",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := schedule.List()
			if viper.GetBool("json") {
				return printJSON(infos)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Description"})
			for _, a := range infos {
				tw.AppendRow(table.Row{a.ID, a.DisplayName, a.Description})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show committed hours per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				days, err := e.WorkloadReport(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Hours", "Tasks"})
				for _, d := range days {
					ids := make([]string, 0, len(d.Tasks))
					for id := range d.Tasks {
						ids = append(ids, id)
					}
					sort.Strings(ids)
					tw.AppendRow(table.Row{d.Day, fmt.Sprintf("%.1f", d.Hours), strings.Join(ids, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook in planline.yml: daily capacity, end-of-day hour, default algorithm, and holiday dates.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default planline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			_ = cfg
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: task changes, notes, and optimization runs.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key (raw key printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, raw, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "key": raw})
				}
				fmt.Printf("API key %s created for %s\n", k.ID, k.ActorID)
				fmt.Printf("Key (store it now, it is not retrievable): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, conn, err := app.OpenWorkspace(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("PLANLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PLANLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, conn, err := app.OpenWorkspace(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDateOrTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t, nil
}

func printTaskTree(t domain.Task, children map[string][]domain.Task, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s [%s]\n", prefix, connector, t.Name, t.Status)
	for i, c := range children[t.ID] {
		printTaskTree(c, children, newPrefix, i == len(children[t.ID])-1)
	}
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func dayOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func spanOrDash(t domain.Task) string {
	if t.PlannedStart == nil || t.PlannedEnd == nil {
		return "-"
	}
	return t.PlannedStart.Format("2006-01-02") + ".." + t.PlannedEnd.Format("2006-01-02")
}
