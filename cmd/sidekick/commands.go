package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sidekick/internal/app"
	"sidekick/internal/checklist"
	"sidekick/internal/domain"
	"sidekick/internal/engine"
	"sidekick/internal/report"
	"sidekick/internal/session"
)

func equipmentCmd() *cobra.Command {
	eq := &cobra.Command{Use: "equipment", Short: "Manage equipment"}
	eq.AddCommand(equipmentAddCmd())
	eq.AddCommand(equipmentListCmd())
	eq.AddCommand(equipmentShowCmd())
	eq.AddCommand(equipmentScanCmd())
	return eq
}

func equipmentAddCmd() *cobra.Command {
	var opts engine.EquipmentOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorOrLocal(viper.GetString("workspace"))
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eq, err := e.AddEquipment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(eq)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "equipment id printed on the QR label (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "equipment type, e.g. Overhead Crane")
	cmd.Flags().StringVar(&opts.HoistType, "hoist-type", "", "hoist variant selecting the checklist template")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func equipmentListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEquipment(ctx, search)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printEquipment(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "match id or name")
	return cmd
}

func equipmentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show equipment with its inspection history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eq, err := e.GetEquipment(ctx, args[0])
				if err != nil {
					return err
				}
				history, err := e.ListInspections(ctx, eq.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"equipment": eq, "inspections": history})
				}
				printEquipment([]domain.Equipment{eq})
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Inspections")
				tw.AppendHeader(table.Row{"ID", "Inspector", "Status", "Worst", "Issues", "Started", "Completed"})
				for _, in := range history {
					completed := ""
					if in.CompletedAt != nil {
						completed = *in.CompletedAt
					}
					tw.AppendRow(table.Row{in.ID, in.InspectorID, in.Status, checklist.Worst(in.Document), len(checklist.DeriveManifest(in.Document)), in.CreatedAt, completed})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func equipmentScanCmd() *cobra.Command {
	var start bool
	cmd := &cobra.Command{
		Use:   "scan <payload>",
		Short: "Resolve a scanned QR payload",
		Long:  "Accepts a bare id, a sidekick://equipment/<id> URI or a URL ending in the id. With --start an inspection is started or resumed on the unit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eq, err := e.ResolveScan(ctx, args[0])
				if err != nil {
					return err
				}
				if !start {
					return printJSONOrTable(eq)
				}
				actorID, err := currentActor(workspace)
				if err != nil {
					return err
				}
				in, resumed, err := e.StartInspection(ctx, eq.ID, actorID)
				if err != nil {
					return err
				}
				return printInspectionStart(in, resumed)
			})
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "start or resume an inspection")
	return cmd
}

func printEquipment(items []domain.Equipment) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Hoist", "Location", "Status", "Last inspected"})
	for _, eq := range items {
		last := ""
		if eq.LastInspectedAt != nil {
			last = *eq.LastInspectedAt
		}
		tw.AppendRow(table.Row{eq.ID, eq.Name, eq.Type, eq.HoistType, eq.Location, eq.Status, last})
	}
	tw.Render()
}

func inspectorCmd() *cobra.Command {
	ins := &cobra.Command{
		Use:   "inspector",
		Short: "Inspector accounts and login session",
	}
	ins.AddCommand(inspectorRegisterCmd())
	ins.AddCommand(inspectorLoginCmd())
	ins.AddCommand(inspectorLogoutCmd())
	ins.AddCommand(inspectorWhoamiCmd())
	ins.AddCommand(inspectorUseCmd())
	return ins
}

func inspectorRegisterCmd() *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an inspector account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password = passwordOrEnv(password)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := app.Sessions(e, "").Register(ctx, email, name, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (or SIDEKICK_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// passwordOrEnv falls back to SIDEKICK_PASSWORD when no flag was given.
func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return viper.GetString("password")
}

func inspectorLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			password = passwordOrEnv(password)
			workspace := viper.GetString("workspace")
			secret, err := jwtSecret(workspace, true)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := app.Sessions(e, secret).Login(ctx, email, password)
				if err != nil {
					return err
				}
				if err := session.Save(workspace, s); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Logged in as %s (%s) until %s\n", s.DisplayName, s.InspectorID, s.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (or SIDEKICK_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func inspectorLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.Clear(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func inspectorWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting inspector",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			s, err := session.Load(workspace, time.Now())
			if err != nil && !errors.Is(err, session.ErrNoSession) {
				return err
			}
			if err == nil {
				return printJSONOrTable(map[string]any{
					"inspector_id": s.InspectorID,
					"email":        s.Email,
					"display_name": s.DisplayName,
					"expires_at":   s.ExpiresAt.Format(time.RFC3339),
					"source":       "session",
				})
			}
			actorID, err := currentActor(workspace)
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]any{"inspector_id": actorID, "source": "actor-id"})
		},
	}
}

func inspectorUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <inspector-id>",
		Short: "Set the default actor for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := strings.TrimSpace(args[0])
			if actorID == "" {
				return fmt.Errorf("inspector id is required")
			}
			workspace := viper.GetString("workspace")
			key := envPrefix + "_ACTOR_ID"
			if err := setEnvValue(filepath.Join(workspace, ".env"), key, actorID); err != nil {
				return err
			}
			fmt.Printf("Set %s=%s in %s/.env\n", key, actorID, workspace)
			return nil
		},
	}
}

func inspectionCmd() *cobra.Command {
	ins := &cobra.Command{
		Use:     "inspection",
		Aliases: []string{"insp"},
		Short:   "Run inspections",
	}
	ins.AddCommand(inspectionStartCmd())
	ins.AddCommand(inspectionShowCmd())
	ins.AddCommand(inspectionCycleCmd())
	ins.AddCommand(inspectionConfirmResetCmd())
	ins.AddCommand(inspectionNoteCmd())
	ins.AddCommand(inspectionMonitorCmd())
	ins.AddCommand(inspectionAllOKCmd())
	ins.AddCommand(inspectionVoiceCmd())
	ins.AddCommand(inspectionManifestCmd())
	ins.AddCommand(inspectionCompleteCmd())
	ins.AddCommand(inspectionExportCmd())
	return ins
}

// withActor runs fn with the engine and the resolved acting inspector.
func withActor(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	actorID, err := currentActor(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e, actorID)
	})
}

func inspectionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <equipment-id>",
		Short: "Start or resume an inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				in, resumed, err := e.StartInspection(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printInspectionStart(in, resumed)
			})
		},
	}
}

func printInspectionStart(in domain.Inspection, resumed bool) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"inspection": in, "resumed": resumed})
	}
	verb := "Started"
	if resumed {
		verb = "Resumed"
	}
	fmt.Printf("%s inspection %s on %s (template %s)\n", verb, in.ID, in.EquipmentID, in.Document.Template)
	printChecklist(in)
	return nil
}

func inspectionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <inspection-id>",
		Short: "Show the checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetInspection(ctx, args[0])
				if err != nil {
					return err
				}
				return printInspection(in)
			})
		},
	}
}

func inspectionCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle <inspection-id> <item-id>",
		Short: "Advance an item OK -> ATTENTION -> REPAIR -> OK",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				res, err := e.CycleItem(ctx, args[0], args[1], actorID)
				if err != nil {
					return err
				}
				if res.Confirmation == nil {
					return printInspection(res.Inspection)
				}
				ok, err := confirm(cmd, fmt.Sprintf("%s. Reset %s to OK?", res.Confirmation.Reason, res.Confirmation.ItemID))
				if err != nil {
					return err
				}
				if !ok {
					return res.Err()
				}
				in, err := e.ConfirmReset(ctx, args[0], *res.Confirmation, actorID)
				if err != nil {
					return err
				}
				return printInspection(in)
			})
		},
	}
}

func inspectionConfirmResetCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "confirm-reset <inspection-id> <item-id>",
		Short: "Reset an item to OK, clearing notes and the monitor flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				var (
					in  domain.Inspection
					err error
				)
				if from == "" {
					in, err = e.ResetItem(ctx, args[0], args[1], actorID)
				} else {
					status, perr := checklist.ParseStatus(from)
					if perr != nil {
						return perr
					}
					in, err = e.ConfirmReset(ctx, args[0], checklist.ConfirmationRequest{
						ItemID: args[1],
						From:   status,
						To:     checklist.StatusOK,
					}, actorID)
				}
				if err != nil {
					return err
				}
				return printInspection(in)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "status the item must still have (OK, ATTENTION, REPAIR)")
	return cmd
}

func inspectionNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note <inspection-id> <item-id> <text...>",
		Short: "Replace an item's note (empty text clears it)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[2:], " ")
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				res, err := e.SetNote(ctx, args[0], args[1], text, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printChecklist(res.Inspection)
				if res.MonitorPrompt {
					fmt.Printf("%s is OK with a note. Monitor it? Run: sidekick inspection monitor %s %s\n", args[1], args[0], args[1])
				}
				return nil
			})
		},
	}
}

func inspectionMonitorCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "monitor <inspection-id> <item-id>",
		Short: "Flag an OK item for monitoring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				in, err := e.SetMonitor(ctx, args[0], args[1], !off, actorID)
				if err != nil {
					return err
				}
				return printInspection(in)
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "answer no to the monitor prompt")
	return cmd
}

func inspectionAllOKCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all-ok <inspection-id> <section>",
		Short: "Mark every item of a section OK",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				in, err := e.SetAllOK(ctx, args[0], args[1], actorID)
				if err != nil {
					return err
				}
				return printInspection(in)
			})
		},
	}
}

func inspectionVoiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voice <inspection-id> <utterance...>",
		Short: "Apply a dictated utterance",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			utterance := strings.Join(args[1:], " ")
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				res, err := e.ApplyUtterance(ctx, args[0], utterance, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Matched {
					fmt.Println("No checklist item recognised; nothing changed.")
					return nil
				}
				for _, u := range res.Updates {
					status := "(unchanged)"
					if u.Status != nil {
						status = string(*u.Status)
					}
					fmt.Printf("%s %s: %s\n", u.ItemID, status, u.Clause)
				}
				printChecklist(res.Inspection)
				return nil
			})
		},
	}
}

func inspectionManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <inspection-id>",
		Short: "List outstanding items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Manifest(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				if len(entries) == 0 {
					fmt.Println("No outstanding items.")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Section", "ID", "Item", "Status", "Notes"})
				for _, m := range entries {
					tw.AppendRow(table.Row{m.Section, m.Item.ID, m.Item.Label, m.Item.DisplayStatus(), m.Item.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func inspectionCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <inspection-id>",
		Short: "Complete an inspection and update the equipment status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				in, err := e.CompleteInspection(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(in)
				}
				eq, err := e.GetEquipment(ctx, in.EquipmentID)
				if err != nil {
					return err
				}
				fmt.Printf("Completed %s; %s is now %s (%d outstanding)\n", in.ID, eq.ID, eq.Status, len(checklist.DeriveManifest(in.Document)))
				return nil
			})
		},
	}
}

func inspectionExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <inspection-id>",
		Short: "Write the inspection report as XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetInspection(ctx, args[0])
				if err != nil {
					return err
				}
				eq, err := e.GetEquipment(ctx, in.EquipmentID)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = fmt.Sprintf("%s-%s.xlsx", eq.ID, in.ID)
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := report.Write(in, eq, f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func printInspection(in domain.Inspection) error {
	if viper.GetBool("json") {
		return printJSON(in)
	}
	printChecklist(in)
	return nil
}

func printChecklist(in domain.Inspection) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(fmt.Sprintf("%s  %s  [%s]", in.EquipmentID, in.ID, in.Status))
	tw.AppendHeader(table.Row{"Section", "ID", "Item", "Status", "Notes"})
	for _, s := range in.Document.Sections {
		for _, it := range s.Items {
			tw.AppendRow(table.Row{s.Name, it.ID, it.Label, it.DisplayStatus(), it.Notes})
		}
	}
	tw.Render()
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				key, plain, err := e.CreateAPIKey(ctx, actorID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": plain})
				}
				fmt.Printf("Created key %s\n%s\n", key.ID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	k.AddCommand(create)
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				keys, err := e.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				if err := e.RevokeAPIKey(ctx, args[0], actorID); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	})
	return k
}
