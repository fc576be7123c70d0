package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	naturaldate "github.com/tj/go-naturaldate"

	"github.com/smartslot/slotplanner/internal/config"
	"github.com/smartslot/slotplanner/internal/feed"
	"github.com/smartslot/slotplanner/internal/planner"
	"github.com/smartslot/slotplanner/internal/report"
	"github.com/smartslot/slotplanner/internal/reseller"
	"github.com/smartslot/slotplanner/internal/slot"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "slotplanner",
	Short: "Calendar-aware appointment scheduler for field sales",
	Long:  "slotplanner reads a busy calendar feed and finds the insertion point for a new appointment that minimizes total driving time, or reports which days are open for reseller visits and admin work.",
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Find the best slot for a new appointment",
	RunE:  runSuggest,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Classify the coming days and propose reseller visits or admin windows",
	RunE:  runReport,
}

var resellersCmd = &cobra.Command{
	Use:   "resellers",
	Short: "Manage the reseller list",
}

var resellersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known resellers",
	RunE:  runResellersList,
}

var resellersImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Replace the reseller list from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runResellersImport,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	suggestCmd.Flags().String("source", "", "Calendar feed URL or file (overrides config)")
	suggestCmd.Flags().String("address", "", "Address of the new appointment")
	suggestCmd.Flags().Int("duration", 60, "Appointment length in minutes")
	suggestCmd.Flags().String("from", "", "First day to search, e.g. 'tomorrow' or 'next monday'")
	suggestCmd.Flags().Int("days", 0, "Number of days to search (defaults to config)")
	suggestCmd.Flags().Bool("skip-weekends", true, "Skip Saturdays and Sundays (defaults to config)")
	suggestCmd.Flags().String("rank", string(slot.RankTravel), "Ranking mode: travel or earliest")
	suggestCmd.MarkFlagRequired("address")

	reportCmd.Flags().String("source", "", "Calendar feed URL or file (overrides config)")
	reportCmd.Flags().String("from", "", "First day to report, e.g. 'tomorrow'")
	reportCmd.Flags().Int("days", 0, "Number of days to report (defaults to config)")

	resellersCmd.AddCommand(resellersListCmd)
	resellersCmd.AddCommand(resellersImportCmd)

	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(resellersCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseFrom(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		return t, nil
	}
	t, err := naturaldate.Parse(value, time.Now(), naturaldate.WithDirection(naturaldate.Future))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", value, err)
	}
	return t, nil
}

func fetchFeed(ctx context.Context, cfg *config.Config, cmd *cobra.Command) ([]byte, error) {
	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		source = cfg.Calendar.Source
	}
	if source == "" {
		return nil, fmt.Errorf("no calendar source: set calendar.source, SLOTPLANNER_ICS_URL, or --source")
	}
	timeout := time.Duration(cfg.Calendar.TimeoutSeconds) * time.Second
	raw, err := feed.Fetch(ctx, source, timeout)
	if err != nil {
		return nil, fmt.Errorf("loading calendar: %w", err)
	}
	return raw, nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger()

	address, _ := cmd.Flags().GetString("address")
	duration, _ := cmd.Flags().GetInt("duration")
	fromFlag, _ := cmd.Flags().GetString("from")
	days, _ := cmd.Flags().GetInt("days")
	rank, _ := cmd.Flags().GetString("rank")

	if cmd.Flags().Changed("skip-weekends") {
		cfg.Schedule.SkipWeekends, _ = cmd.Flags().GetBool("skip-weekends")
	}

	from, err := parseFrom(fromFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	raw, err := fetchFeed(ctx, cfg, cmd)
	if err != nil {
		return err
	}

	p, err := planner.New(cfg, logger)
	if err != nil {
		return err
	}

	result, err := p.Suggest(ctx, planner.SuggestRequest{
		FeedText: raw,
		Address:  address,
		Duration: time.Duration(duration) * time.Minute,
		From:     from,
		Days:     days,
		Rank:     slot.RankMode(rank),
	})
	if errors.Is(err, slot.ErrNoSlot) {
		printNotes(result.Notes)
		fmt.Println(warningStyle.Render("No feasible slot in the searched horizon."))
		return nil
	}
	if err != nil {
		return err
	}

	printNotes(result.Notes)
	fmt.Println(titleStyle.Render(fmt.Sprintf("Best slots for %q (%d min)", address, duration)))
	for i, cand := range result.Candidates {
		if i >= 3 {
			break
		}
		line := fmt.Sprintf("%s  %s – %s\n%s",
			highlightStyle.Render(cand.Day.Format("Mon 02 Jan")),
			cand.Start.Format("15:04"),
			cand.End.Format("15:04"),
			dimStyle.Render(fmt.Sprintf("drive %d min in (after %s), %d min out (before %s), total %d min",
				cand.TravelIn, cand.PrevLabel, cand.TravelOut, cand.NextLabel, cand.Cost())),
		)
		fmt.Println(boxStyle.Render(line))
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger()

	fromFlag, _ := cmd.Flags().GetString("from")
	days, _ := cmd.Flags().GetInt("days")

	from, err := parseFrom(fromFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	raw, err := fetchFeed(ctx, cfg, cmd)
	if err != nil {
		return err
	}

	store, err := reseller.Open("")
	if err != nil {
		return fmt.Errorf("opening reseller store: %w", err)
	}
	defer store.Close()

	resellers, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing resellers: %w", err)
	}

	p, err := planner.New(cfg, logger)
	if err != nil {
		return err
	}

	items, err := p.Report(ctx, planner.ReportRequest{
		FeedText:  raw,
		From:      from,
		Days:      days,
		Resellers: resellers,
	})
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Day report"))
	for _, item := range items {
		fmt.Println(boxStyle.Render(formatItem(item)))
	}
	return nil
}

func formatItem(item report.Item) string {
	var b strings.Builder
	b.WriteString(highlightStyle.Render(item.Date.Format("Mon 02 Jan")))
	b.WriteString("  " + item.Summary())
	if item.IsFull {
		b.WriteString("\n" + warningStyle.Render("Full, no suggestion"))
		return b.String()
	}

	s := item.Suggestion
	switch s.Kind {
	case report.SuggestReseller:
		b.WriteString("\n" + successStyle.Render(fmt.Sprintf("Visit %s  %s – %s (drive %d min total)",
			s.ResellerName, s.Start.Format("15:04"), s.End.Format("15:04"), s.TravelIn+s.TravelOut)))
	case report.SuggestAdmin:
		b.WriteString("\n" + successStyle.Render(fmt.Sprintf("Admin window (%s)  %s – %s",
			s.BandLabel, s.Start.Format("15:04"), s.End.Format("15:04"))))
	default:
		b.WriteString("\n" + dimStyle.Render("No suggestion: "+s.Reason))
	}
	for _, note := range item.Notes {
		b.WriteString("\n" + dimStyle.Render(note))
	}
	return b.String()
}

func printNotes(notes []string) {
	for _, note := range notes {
		fmt.Println(dimStyle.Render(note))
	}
}

func runResellersList(cmd *cobra.Command, args []string) error {
	store, err := reseller.Open("")
	if err != nil {
		return fmt.Errorf("opening reseller store: %w", err)
	}
	defer store.Close()

	resellers, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing resellers: %w", err)
	}
	if len(resellers) == 0 {
		fmt.Println(dimStyle.Render("No resellers yet, import some with 'slotplanner resellers import'."))
		return nil
	}
	for _, r := range resellers {
		line := fmt.Sprintf("%s  %s", highlightStyle.Render(r.Name), r.Address)
		if r.Notes != "" {
			line += "\n" + dimStyle.Render(r.Notes)
		}
		fmt.Println(line)
	}
	return nil
}

func runResellersImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	store, err := reseller.Open("")
	if err != nil {
		return fmt.Errorf("opening reseller store: %w", err)
	}
	defer store.Close()

	count, err := store.ImportJSON(context.Background(), f)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Imported %d resellers.", count)))
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	c := exec.Command(editor, path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
