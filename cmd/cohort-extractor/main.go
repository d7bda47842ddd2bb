package main

import (
	"context"
	"os"

	"cohort-extractor/internal/cohort"
	"cohort-extractor/internal/config"
	"cohort-extractor/internal/database"
	"cohort-extractor/internal/export"
	"cohort-extractor/internal/logger"
	"cohort-extractor/internal/models"
	"cohort-extractor/internal/notify"
	"cohort-extractor/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "cohort-extractor"

// overrides holds flag values; empty strings leave the environment config alone.
type overrides struct {
	output     string
	sheet      string
	asOf       string
	vocabulary string
	driver     string
	dsn        string
	verify     bool // read the workbook back after a successful run
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &overrides{}

	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Extract the cerebral palsy encounter cohort into a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtraction(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.output, "output", "", "Output workbook path (COHORT_OUTPUT)")
	flags.StringVar(&opts.sheet, "sheet", "", "Sheet name (COHORT_SHEET)")
	flags.StringVar(&opts.asOf, "as-of", "", "Processing date YYYY-MM-DD, default today (COHORT_AS_OF)")
	flags.StringVar(&opts.vocabulary, "vocabulary", "", "YAML file with accepted diagnoses and study phases (COHORT_VOCABULARY_FILE)")
	flags.StringVar(&opts.driver, "driver", "", "Database driver: postgres or pgx (DB_DRIVER)")
	flags.StringVar(&opts.dsn, "dsn", "", "Database connection descriptor (DB_DSN)")
	flags.BoolVar(&opts.verify, "verify", false, "Read the written workbook back and check its row count")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one extraction (same as the bare command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtraction(cmd.Context(), opts)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "vocabulary",
		Short: "Print the accepted diagnosis spellings and study phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			vocab, err := loadVocabulary(cfg)
			if err != nil {
				return err
			}
			out, err := vocab.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return rootCmd
}

func loadConfig(opts *overrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, opts *overrides) {
	if opts.output != "" {
		cfg.Export.OutputPath = opts.output
	}
	if opts.sheet != "" {
		cfg.Export.SheetName = opts.sheet
	}
	if opts.asOf != "" {
		cfg.Cohort.AsOf = opts.asOf
	}
	if opts.vocabulary != "" {
		cfg.Cohort.VocabularyFile = opts.vocabulary
	}
	if opts.driver != "" {
		cfg.Database.Driver = opts.driver
	}
	if opts.dsn != "" {
		cfg.Database.DSN = opts.dsn
	}
}

func loadVocabulary(cfg *config.Config) (cohort.Vocabulary, error) {
	if cfg.Cohort.VocabularyFile == "" {
		return cohort.DefaultVocabulary(), nil
	}
	return cohort.LoadVocabulary(cfg.Cohort.VocabularyFile)
}

func runExtraction(ctx context.Context, opts *overrides) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// cobra reports errors returned before the logger exists
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer log.Sync()

	vocab, err := loadVocabulary(cfg)
	if err != nil {
		log.Error("Failed to load vocabulary", zap.Error(err))
		return err
	}

	notifier, closeNotifiers := notify.Build(cfg, log)
	defer closeNotifiers()

	open := func(ctx context.Context) (*sqlx.DB, error) {
		return database.Open(ctx, &cfg.Database)
	}

	extractor, err := service.NewExtractor(cfg, open, vocab, notifier, log)
	if err != nil {
		log.Error("Failed to create extractor", zap.Error(err))
		return err
	}

	summary, err := extractor.Run(ctx)
	if err != nil {
		return err
	}
	if opts.verify {
		return verifyOutput(cfg, summary, log)
	}
	return nil
}

func verifyOutput(cfg *config.Config, summary *models.RunSummary, log *zap.Logger) error {
	if err := export.VerifyCohort(summary.OutputPath, cfg.Export.SheetName, summary.Kept); err != nil {
		log.Error("Workbook verification failed", zap.String("run_id", summary.RunID), zap.Error(err))
		return err
	}
	log.Info("Workbook verified",
		zap.String("run_id", summary.RunID),
		zap.String("output", summary.OutputPath),
		zap.Int("rows", summary.Kept),
	)
	return nil
}
