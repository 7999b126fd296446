package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chameleoncloud/taskblaster/internal/clipboard"
	"github.com/chameleoncloud/taskblaster/internal/config"
	"github.com/chameleoncloud/taskblaster/internal/present"
	"github.com/chameleoncloud/taskblaster/internal/reconcile"
	"github.com/chameleoncloud/taskblaster/internal/redmine"
	"github.com/chameleoncloud/taskblaster/internal/report"
	"github.com/chameleoncloud/taskblaster/internal/trello"
)

// --- Cobra Command Definitions ---

var (
	// Used for flags.
	verbose      int
	mappingsPath string
	timezone     string

	trelloAPIKey string
	trelloToken  string
	trelloBoard  string
	trelloURL    string
	trelloUser   string
	copyReport   bool

	redmineURL     string
	redmineAPIKey  string
	redmineProject string
	confirmFields  bool
	assumeYes      bool
	dryRun         bool
	sinceDays      int

	// Loaded in the root command's pre-run.
	cfg *config.Config

	logLevel = new(slog.LevelVar)

	// nowFunc is replaced in tests.
	nowFunc = time.Now

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:               "taskblaster",
		Short:             "Sync Trello cards to Redmine tickets and write standup reports.",
		Long:              `Taskblaster keeps Redmine tickets in line with the Trello cards that reference them, and summarizes today's card comments as a standup report.`,
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	// standupCmd represents the standup-report command
	standupCmd = &cobra.Command{
		Use:   "standup-report",
		Short: "Print today's standup report.",
		Long:  `Collects the comments a member left today on the cards assigned to them and prints them as a standup digest.`,
		RunE:  runStandupCommand,
	}

	// syncCmd represents the sync-to-redmine command
	syncCmd = &cobra.Command{
		Use:   "sync-to-redmine",
		Short: "Create and update Redmine tickets from Trello cards.",
		Long: `Creates a ticket for every card whose ticket field says "new", updates tickets whose
fields drifted from their card, and copies new card comments to ticket notes.
Every change is shown and confirmed before it is applied.`,
		RunE: runSyncCommand,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Enable debug logging.")
	rootCmd.PersistentFlags().StringVar(&mappingsPath, "config", "", "Path to the category/user mappings YAML file.")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "", "Time zone that defines today (default $TASKBLASTER_TIMEZONE or America/Chicago).")
	rootCmd.PersistentFlags().StringVar(&trelloAPIKey, "trello-api-key", "", "Trello API key (default $TRELLO_API_KEY).")
	rootCmd.PersistentFlags().StringVar(&trelloToken, "trello-token", "", "Trello token (default $TRELLO_TOKEN).")
	rootCmd.PersistentFlags().StringVar(&trelloBoard, "trello-board", "", "Trello board id or short link (default $TRELLO_BOARD).")
	rootCmd.PersistentFlags().StringVar(&trelloURL, "trello-url", "", "Trello API base URL.")
	rootCmd.PersistentFlags().MarkHidden("trello-url")

	standupCmd.Flags().StringVar(&trelloUser, "trello-user", "", "Trello username to report on (default $TRELLO_USER).")
	standupCmd.Flags().BoolVar(&copyReport, "copy", false, "Also copy the report to the clipboard.")

	syncCmd.Flags().StringVar(&redmineURL, "redmine-url", "", "Redmine URL (default $REDMINE_URL).")
	syncCmd.Flags().StringVar(&redmineAPIKey, "redmine-api-key", "", "Redmine API key (default $REDMINE_API_KEY).")
	syncCmd.Flags().StringVar(&redmineProject, "redmine-project", "", "Redmine project (default $REDMINE_PROJECT or chameleon).")
	syncCmd.Flags().BoolVar(&confirmFields, "confirm", false, "Confirm every changed field separately.")
	syncCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Apply every change without asking.")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change and apply nothing.")
	syncCmd.Flags().IntVar(&sinceDays, "since-days", 7, "Only sync cards active in the last N days (0 for all).")

	rootCmd.AddCommand(standupCmd)
	rootCmd.AddCommand(syncCmd)
}

// --- Main Application Entry Point ---

func main() {
	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	Execute(ctx)
}

// --- Command Execution Logic ---

func loadConfig(cmd *cobra.Command, args []string) error {
	if verbose > 0 {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}

	var err error
	cfg, err = config.Load(mappingsPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	override(&cfg.Timezone, timezone)
	override(&cfg.TrelloAPIKey, trelloAPIKey)
	override(&cfg.TrelloToken, trelloToken)
	override(&cfg.TrelloBoard, trelloBoard)
	override(&cfg.TrelloURL, trelloURL)
	override(&cfg.TrelloUser, trelloUser)
	override(&cfg.RedmineURL, redmineURL)
	override(&cfg.RedmineAPIKey, redmineAPIKey)
	override(&cfg.RedmineProject, redmineProject)
	return nil
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func newTrelloClient() *trello.Client {
	return trello.NewClient(cfg.TrelloURL, cfg.TrelloAPIKey, cfg.TrelloToken, cfg.TrelloBoard, trello.FieldNames{
		Category: cfg.Mappings.CategoryField,
		Ticket:   cfg.Mappings.TicketField,
	})
}

func runStandupCommand(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateTrello(); err != nil {
		return err
	}
	if cfg.TrelloUser == "" {
		return errors.New("missing trello user: set it by flag or environment variable")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client := newTrelloClient()
	board, err := client.Board(ctx)
	if err != nil {
		return err
	}

	lines, err := report.Standup(ctx, client, board, report.Options{
		Username:  cfg.TrelloUser,
		Now:       nowFunc().In(loc),
		SkipLists: []string{cfg.Mappings.FutureList},
	})
	if err != nil {
		return fmt.Errorf("failed to generate standup report: %w", err)
	}

	report.Print(cmd.OutOrStdout(), lines)

	if copyReport {
		if err := clipboard.CopyText(strings.Join(lines, "\n")); err != nil {
			slog.Warn("could not copy report to clipboard", "error", err)
		}
	}
	return nil
}

func runSyncCommand(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateTrello(); err != nil {
		return err
	}
	if err := cfg.ValidateRedmine(); err != nil {
		return err
	}
	confirmer, err := newConfirmer(cmd)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	now := nowFunc().In(loc)

	ctx := cmd.Context()
	board := newTrelloClient()
	tracker := redmine.NewClient(cfg.RedmineURL, cfg.RedmineAPIKey, cfg.RedmineProject)

	meta, err := board.Board(ctx)
	if err != nil {
		return err
	}
	if err := reconcile.ValidateBoard(meta, cfg.Mappings); err != nil {
		return err
	}
	tctx, err := reconcile.ResolveContext(ctx, tracker, cfg.Mappings.HighPriority, now)
	if err != nil {
		return err
	}
	slog.Debug("resolved tracker context", "priority", tctx.HighPriority.Name, "version", tctx.Version.Name,
		"categories", len(tctx.Categories), "members", len(tctx.Members))

	var since time.Time
	if sinceDays > 0 {
		since = now.AddDate(0, 0, -sinceDays)
	}

	ui := present.New(cmd.OutOrStdout(), confirmer, confirmFields)
	engine := reconcile.NewEngine(board, tracker, meta, tctx, cfg.Mappings, ui)
	summary, err := engine.Run(ctx, since)
	slog.Info("sync finished",
		"cards", summary.Cards,
		"created", summary.Created,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"declined", summary.Declined,
		"invalid_refs", summary.InvalidRefs,
		"notes_added", summary.NotesAdded)
	return err
}

func newConfirmer(cmd *cobra.Command) (present.Confirmer, error) {
	switch {
	case assumeYes && dryRun:
		return nil, errors.New("--yes and --dry-run cannot be used together")
	case assumeYes:
		return present.Auto(true), nil
	case dryRun:
		return present.Auto(false), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return nil, errors.New("standard input is not a terminal: use --yes or --dry-run")
	}
	return present.NewPrompter(in, cmd.OutOrStdout()), nil
}
