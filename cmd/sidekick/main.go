package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sidekick/internal/app"
	"sidekick/internal/config"
	"sidekick/internal/db"
	"sidekick/internal/engine"
	"sidekick/internal/logging"
	"sidekick/internal/repo"
	"sidekick/internal/server"
	"sidekick/internal/session"
)

const envPrefix = "SIDEKICK"

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "Sidekick crane inspection CLI",
	Long: `Sidekick records periodic inspections of cranes and hoists.
- Equipment: registered units, each with a QR label and a status of Clear, Warning or Overdue.
- Inspection: a checklist built from the unit's template; items cycle OK -> ATTENTION -> REPAIR.
- Voice: dictated sentences are matched to checklist items and applied as status and notes.
- Manifest: the outstanding items (not OK, or OK but monitored) in checklist order.
- Event log: every change is recorded, view it with 'sidekick log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := loadDotEnv(workspace); err != nil {
			return err
		}
		return logging.Setup(viper.GetString("log-level"), viper.GetString("log-format"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "inspector id used when no login session exists")
	rootCmd.PersistentFlags().Bool("force", false, "skip confirmations")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", logging.FormatConsole, "log format (console, json)")
	for _, name := range []string{"workspace", "json", "actor-id", "force", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(equipmentCmd())
	rootCmd.AddCommand(inspectorCmd())
	rootCmd.AddCommand(inspectionCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect and import the workspace config",
		Long:  "Config holds the checklist templates, voice keywords, inspection interval and webhooks. It is stored in the DB; edit sidekick.yml and import it to change it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the built-in config to sidekick.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.DefaultYAML()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			var (
				cfg *config.Config
				err error
			)
			if filePath != "" {
				cfg, err = config.FromFile(filePath)
			} else {
				cfg, err = config.LoadOptional(workspace)
				if err == nil && cfg == nil {
					err = fmt.Errorf("no %s found; pass --file", config.Path(workspace))
				}
			}
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ImportConfig(ctx, cfg, actorOrLocal(workspace)); err != nil {
					return err
				}
				log.Info().Strs("templates", cfg.Catalog().Names()).Msg("config imported")
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (default: <workspace>/sidekick.yml)")
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Browse checklist templates"}
	tpl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				catalog := e.Config.Catalog()
				names := catalog.Names()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"default": catalog.DefaultName(), "templates": names})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Template", "Sections", "Items", "Default"})
				for _, name := range names {
					t, _ := catalog.Get(name)
					items := 0
					for _, s := range t.Sections {
						items += len(s.Items)
					}
					def := ""
					if name == catalog.DefaultName() {
						def = "*"
					}
					tw.AppendRow(table.Row{name, len(t.Sections), items, def})
				}
				tw.Render()
				return nil
			})
		},
	})
	tpl.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a template's sections and items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, ok := e.Config.Catalog().Get(args[0])
				if !ok {
					return fmt.Errorf("template %s: %w", args[0], repo.ErrNotFound)
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(t.Name)
				tw.AppendHeader(table.Row{"Section", "ID", "Item"})
				for _, s := range t.Sections {
					for _, it := range s.Items {
						tw.AppendRow(table.Row{s.Name, it.ID, it.Label})
					}
				}
				tw.Render()
				return nil
			})
		},
	})
	return tpl
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Fleet summary by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Equipment", d.Equipment},
					{"Clear", d.ByStatus["Clear"]},
					{"Warning", d.ByStatus["Warning"]},
					{"Overdue", d.ByStatus["Overdue"]},
					{"Open inspections", d.OpenInspections},
					{"Open issues", d.OpenIssues},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Equipment", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EquipmentID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EquipmentID, "equipment", "", "equipment id")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			secret, err := jwtSecret(workspace, false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, e, err := app.Open(ctx, workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			handler, err := server.New(server.Config{
				Engine:   e,
				Sessions: app.Sessions(e, secret),
				BasePath: basePath,
				Webhooks: true,
				Context:  ctx,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving sidekick api")
			fmt.Printf("Serving Sidekick API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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
	conn, e, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func loadDotEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err == nil {
		return godotenv.Load(path)
	}
	return nil
}

// jwtSecret returns SIDEKICK_JWT_SECRET. With generate set, a missing secret
// is created and persisted to the workspace .env.
func jwtSecret(workspace string, generate bool) (string, error) {
	if secret := viper.GetString("jwt-secret"); secret != "" {
		return secret, nil
	}
	key := envPrefix + "_JWT_SECRET"
	if !generate {
		return "", fmt.Errorf("%s is required for bearer auth", key)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(buf)
	if err := setEnvValue(filepath.Join(workspace, ".env"), key, secret); err != nil {
		return "", err
	}
	os.Setenv(key, secret)
	log.Info().Str("path", filepath.Join(workspace, ".env")).Msg("generated jwt secret")
	return secret, nil
}

// currentActor resolves the acting inspector: the stored login session first,
// then --actor-id / SIDEKICK_ACTOR_ID.
func currentActor(workspace string) (string, error) {
	s, err := session.Load(workspace, time.Now())
	if err == nil {
		return s.InspectorID, nil
	}
	if !errors.Is(err, session.ErrNoSession) {
		return "", err
	}
	if id := strings.TrimSpace(viper.GetString("actor-id")); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: run 'sidekick inspector login' or pass --actor-id", session.ErrNoSession)
}

// actorOrLocal is used for audit entries that do not need an owner.
func actorOrLocal(workspace string) string {
	if id, err := currentActor(workspace); err == nil {
		return id
	}
	return "local"
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	if viper.GetBool("force") {
		return true, nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false, nil
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
