package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/devops-ingest/internal/aggregator"
	"github.com/kurihiro0119/devops-ingest/internal/cache"
	"github.com/kurihiro0119/devops-ingest/internal/collector"
	"github.com/kurihiro0119/devops-ingest/internal/config"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/extractor"
	"github.com/kurihiro0119/devops-ingest/internal/logging"
	"github.com/kurihiro0119/devops-ingest/internal/metrics"
	"github.com/kurihiro0119/devops-ingest/internal/preflight"
	"github.com/kurihiro0119/devops-ingest/internal/provider"
	"github.com/kurihiro0119/devops-ingest/internal/scan"
	"github.com/kurihiro0119/devops-ingest/internal/storage"
	"github.com/kurihiro0119/devops-ingest/internal/storage/postgres"
	"github.com/kurihiro0119/devops-ingest/internal/storage/sqlite"
	"github.com/kurihiro0119/devops-ingest/pkg/client"
)

var (
	cfgFile    string
	outputJSON bool

	fromDate      string
	toDate        string
	jobCategory   string
	fetchOnce     bool
	allIterations bool
	flagOverrides []string

	recordResource string
	recordProject  string
	recordLimit    int
	recordOffset   int
	scanLimit      int
	purgeCache     bool
)

var rootCmd = &cobra.Command{
	Use:   "devops-ingest",
	Short: "Azure DevOps ingestion tool",
	Long: `A CLI tool for incrementally ingesting Azure DevOps data.

This tool crawls repositories, version control, pipelines and boards of every
organization reachable with the configured token, stores the enriched records
locally and resumes interrupted scans from their last checkpoint.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := godotenv.Load(cfgFile); err != nil {
				return fmt.Errorf("failed to load config file: %w", err)
			}
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan Azure DevOps",
	Long:  `Run a scan of the configured integration, resuming from its checkpoint when one is pending.`,
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show ingested data",
}

var showSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the ingestion summary",
	Args:  cobra.NoArgs,
	RunE:  runShowSummary,
}

var showRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored records",
	Args:  cobra.NoArgs,
	RunE:  runShowRecords,
}

var showScansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List recent scan runs",
	Args:  cobra.NoArgs,
	RunE:  runShowScans,
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or clear the pending checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the pending checkpoint",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointShow,
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the pending checkpoint so the next scan starts over",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointClear,
}

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check that the token can read every resource a scan needs",
	Args:  cobra.NoArgs,
	RunE:  runPreflight,
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Query a running API server",
}

var remoteSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the ingestion summary served by the API",
	Args:  cobra.NoArgs,
	RunE:  runRemoteSummary,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	scanCmd.Flags().StringVar(&fromDate, "from", "", "start date (YYYY-MM-DD), defaults to the onboarding window")
	scanCmd.Flags().StringVar(&toDate, "to", "", "end date (YYYY-MM-DD), defaults to now")
	scanCmd.Flags().StringVar(&jobCategory, "category", "", "job category (SCM_GIT, SCM_TFVC, CICD, BOARDS_1, BOARDS_2)")
	scanCmd.Flags().BoolVar(&fetchOnce, "once", false, "one-shot scan; also fetches tags")
	scanCmd.Flags().BoolVar(&allIterations, "all-iterations", false, "fetch every iteration instead of the current one")
	scanCmd.Flags().StringArrayVar(&flagOverrides, "flag", nil, "ingestion flag override, e.g. fetch_commits=false")

	showRecordsCmd.Flags().StringVar(&recordResource, "resource", "", "filter by resource")
	showRecordsCmd.Flags().StringVar(&recordProject, "project", "", "filter by project name")
	showRecordsCmd.Flags().IntVar(&recordLimit, "limit", storage.DefaultRecordLimit, "maximum number of records")
	showRecordsCmd.Flags().IntVar(&recordOffset, "offset", 0, "records to skip")
	showScansCmd.Flags().IntVar(&scanLimit, "limit", 20, "maximum number of scan runs")
	checkpointClearCmd.Flags().BoolVar(&purgeCache, "purge-cache", false, "also drop the cached project lists")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showSummaryCmd)
	showCmd.AddCommand(showRecordsCmd)
	showCmd.AddCommand(showScansCmd)
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)
	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.AddCommand(remoteSummaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.New(cfg.LogLevel, os.Stderr, false), nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func getCache(cfg *config.Config) (cache.IngestionCache, func() error, error) {
	if cfg.CachePath == "" {
		return cache.NewMemory(cfg.CacheTTL), func() error { return nil }, nil
	}
	b, err := cache.NewBolt(cfg.CachePath, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

func parseFlagOverrides(values []string) (map[string]bool, error) {
	flags := make(map[string]bool, len(values))
	for _, v := range values {
		name, raw, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("flag %q must be of the form name=true|false", v)
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("flag %q: %w", v, err)
		}
		flags[strings.TrimSpace(name)] = b
	}
	return flags, nil
}

func buildQuery(cfg *config.Config, integration *config.Integration) (domain.ScanQuery, error) {
	from, err := parseDate(fromDate)
	if err != nil {
		return domain.ScanQuery{}, fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseDate(toDate)
	if err != nil {
		return domain.ScanQuery{}, fmt.Errorf("invalid --to: %w", err)
	}
	category, err := domain.ParseJobCategory(jobCategory)
	if err != nil {
		return domain.ScanQuery{}, err
	}
	flags, err := parseFlagOverrides(flagOverrides)
	if err != nil {
		return domain.ScanQuery{}, err
	}
	return domain.ScanQuery{
		IntegrationKey:     cfg.Key(),
		From:               from,
		To:                 to,
		FetchOnce:          fetchOnce,
		FetchAllIterations: allIterations || integration.FetchAllIterations,
		JobCategory:        category,
		IngestionFlags:     flags,
	}, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	integration, err := config.LoadIntegration(cfg.IntegrationFile)
	if err != nil {
		return err
	}
	query, err := buildQuery(cfg, integration)
	if err != nil {
		return err
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ingestionCache, closeCache, err := getCache(cfg)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer closeCache()

	m := metrics.New(prometheus.NewRegistry())
	remote := collector.New(collector.Options{
		BaseURL:            cfg.BaseURL,
		ReleaseURL:         cfg.ReleaseURL,
		ProfileURL:         cfg.ProfileURL,
		Token:              cfg.Token,
		AuthType:           cfg.AuthType,
		PageSize:           cfg.PageSize,
		ThrottlingInterval: cfg.ThrottlingInterval,
		Timeout:            cfg.HTTPTimeout,
		Organizations:      integration.Organizations,
		Metrics:            m,
		Logger:             logger,
	})
	projects := provider.New(remote, ingestionCache, integration.Projects, m, logger)
	extractors := extractor.All(remote, projects, extractor.Options{Logger: logger, Metrics: m})
	coordinator := scan.NewCoordinator(extractors, scan.Options{
		Flags:          integration.Flags,
		OnboardingDays: cfg.OnboardingDays,
		Metrics:        m,
		Logger:         logger,
	})
	orchestrator := scan.NewOrchestrator(coordinator, store, scan.OrchestratorOptions{
		MaxAttempts: cfg.MaxScanAttempts,
		Metrics:     m,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanning integration %s\n", cfg.Key())
	fmt.Printf("Stages: %v\n", coordinator.Plan(query))

	run, scanErr := orchestrator.Scan(ctx, query)
	if run != nil {
		if err := printScanRuns([]*domain.ScanRun{run}); err != nil {
			return err
		}
	}
	if scanErr != nil {
		return fmt.Errorf("scan did not complete: %w", scanErr)
	}
	return nil
}

func runShowSummary(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	summary, err := aggregator.NewAggregator(store).Summarize(cmd.Context(), cfg.Key())
	if err != nil {
		return fmt.Errorf("failed to summarize: %w", err)
	}
	return printSummary(summary)
}

func runShowRecords(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	filter := storage.RecordFilter{Project: recordProject, Limit: recordLimit, Offset: recordOffset}
	if recordResource != "" {
		if filter.Resource, err = domain.ParseStage(recordResource); err != nil {
			return err
		}
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	records, err := store.GetRecords(cmd.Context(), cfg.Key(), filter)
	if err != nil {
		return fmt.Errorf("failed to get records: %w", err)
	}

	if outputJSON {
		return printJSON(records)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Resource", "Organization", "Project", "Parent", "Items", "Stored"})
	for _, r := range records {
		table.Append([]string{
			r.ID,
			string(r.Resource),
			r.Organization,
			r.Project,
			parentName(r.Record),
			fmt.Sprintf("%d", r.Items),
			r.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}

func parentName(r domain.EnrichedRecord) string {
	switch {
	case r.Repository != nil:
		return r.Repository.Name
	case r.Pipeline != nil:
		return r.Pipeline.Name
	case r.Definition != nil:
		return r.Definition.Name
	}
	return "-"
}

func runShowScans(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	runs, err := store.GetScanRuns(cmd.Context(), cfg.Key(), scanLimit)
	if err != nil {
		return fmt.Errorf("failed to get scan runs: %w", err)
	}
	return printScanRuns(runs)
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	cp, err := store.GetCheckpoint(cmd.Context(), cfg.Key())
	if err != nil {
		return fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if outputJSON {
		return printJSON(cp)
	}
	if cp.IsZero() {
		fmt.Println("No pending checkpoint")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Completed Stages", fmt.Sprintf("%v", cp.CompletedStages)})
	table.Append([]string{"Resume Organization", cp.ResumeFromOrganization})
	table.Append([]string{"Resume Project", cp.ResumeFromProject})
	table.Render()
	return nil
}

func runCheckpointClear(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	if err := store.DeleteCheckpoint(cmd.Context(), cfg.Key()); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	fmt.Printf("Checkpoint of %s cleared\n", cfg.Key())

	if purgeCache && cfg.CachePath != "" {
		b, err := cache.NewBolt(cfg.CachePath, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer b.Close()
		if err := b.Purge(cfg.Key()); err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		fmt.Println("Project cache purged")
	}
	return nil
}

func runRemoteSummary(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	c := client.NewClient(cfg.APIEndpoint)
	summary, err := c.GetSummary(cmd.Context(), cfg.Key())
	if err != nil {
		return fmt.Errorf("failed to get summary from %s: %w", cfg.APIEndpoint, err)
	}
	return printSummary(summary)
}

func printSummary(summary *domain.IntegrationSummary) error {
	if outputJSON {
		return printJSON(summary)
	}

	fmt.Printf("\nIntegration: %s\n", summary.IntegrationKey)
	if summary.LastScan != nil {
		fmt.Printf("Last scan: %s (%s, %d attempts)\n",
			summary.LastScan.Status, summary.LastScan.UpdatedAt.Format(time.RFC3339), summary.LastScan.Attempts)
	}
	if summary.PendingResume {
		fmt.Printf("Pending checkpoint, completed stages: %v\n", summary.CompletedStages)
	}
	fmt.Println()

	stages := make([]domain.Stage, 0, len(summary.ByResource))
	for stage := range summary.ByResource {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Resource", "Items"})
	for _, stage := range stages {
		table.Append([]string{string(stage), fmt.Sprintf("%d", summary.ByResource[stage])})
	}
	table.SetFooter([]string{"Total", fmt.Sprintf("%d", summary.TotalItems)})
	table.Render()

	fmt.Println()
	projects := tablewriter.NewWriter(os.Stdout)
	projects.SetHeader([]string{"Organization", "Project", "Items"})
	for _, p := range summary.Projects {
		projects.Append([]string{p.Organization, p.Project, fmt.Sprintf("%d", p.TotalItems)})
	}
	projects.Render()
	return nil
}

func runPreflight(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	integration, err := config.LoadIntegration(cfg.IntegrationFile)
	if err != nil {
		return err
	}

	remote := collector.New(collector.Options{
		BaseURL:            cfg.BaseURL,
		ReleaseURL:         cfg.ReleaseURL,
		ProfileURL:         cfg.ProfileURL,
		Token:              cfg.Token,
		AuthType:           cfg.AuthType,
		PageSize:           preflight.PageSize,
		ThrottlingInterval: cfg.ThrottlingInterval,
		Timeout:            cfg.HTTPTimeout,
		Organizations:      integration.Organizations,
		Logger:             logger,
	})
	results := preflight.New(remote, logger).Check(cmd.Context())

	if outputJSON {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Organization", "Project", "Resource", "Status", "Detail"})
		for _, r := range results {
			status := "OK"
			if !r.Success {
				status = "FAILED"
			}
			table.Append([]string{r.Organization, r.Project, r.Resource, status, r.Detail})
		}
		table.Render()
	}

	if !preflight.Passed(results) {
		return fmt.Errorf("preflight check failed")
	}
	return nil
}

func printScanRuns(runs []*domain.ScanRun) error {
	if outputJSON {
		return printJSON(runs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Status", "From", "To", "Attempts", "Records", "Message"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.Status,
			r.From.Format("2006-01-02"),
			r.To.Format("2006-01-02"),
			fmt.Sprintf("%d", r.Attempts),
			fmt.Sprintf("%d", r.Records),
			r.Message,
		})
	}
	table.Render()
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
