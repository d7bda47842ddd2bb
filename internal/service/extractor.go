package service

import (
	"context"
	"fmt"
	"time"

	"cohort-extractor/internal/cohort"
	"cohort-extractor/internal/config"
	"cohort-extractor/internal/database"
	"cohort-extractor/internal/export"
	"cohort-extractor/internal/logger"
	"cohort-extractor/internal/models"
	"cohort-extractor/internal/notify"
	"cohort-extractor/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Opener acquires the database connection for one run.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// Extractor runs the cohort extraction: connect, query, filter, export.
type Extractor struct {
	open     Opener
	vocab    cohort.Vocabulary
	criteria cohort.Criteria
	asOf     time.Time // zero means the run's start date
	output   string
	sheet    string
	notifier notify.Notifier
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
	write func(path, sheet string, rows []models.CohortRow) error
}

// NewExtractor creates an extractor from cfg. notifier may be nil.
func NewExtractor(cfg *config.Config, open Opener, vocab cohort.Vocabulary, notifier notify.Notifier, log *zap.Logger) (*Extractor, error) {
	if err := vocab.Validate(); err != nil {
		return nil, err
	}

	e := &Extractor{
		open:  open,
		vocab: vocab,
		criteria: cohort.Criteria{
			IdentifierLength: cfg.Cohort.IdentifierLength,
			MinAge:           cfg.Cohort.MinAge,
			MaxAge:           cfg.Cohort.MaxAge,
			RecencyYears:     cfg.Cohort.RecencyYears,
		},
		output:   cfg.Export.OutputPath,
		sheet:    cfg.Export.SheetName,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		write:    export.WriteCohort,
	}

	if cfg.Cohort.AsOf != "" {
		asOf, err := cfg.AsOfDate()
		if err != nil {
			return nil, err
		}
		e.asOf = asOf
	}

	return e, nil
}

// Run performs one extraction. The connection is closed before Run returns on
// every path. The returned summary is never nil, including on error.
func (e *Extractor) Run(ctx context.Context) (*models.RunSummary, error) {
	started := e.now()
	today := e.asOf
	if today.IsZero() {
		today = cohort.DateOnly(started)
	}

	summary := &models.RunSummary{
		RunID:     e.newID(),
		StartedAt: started,
		AsOf:      today.Format(cohort.DateLayout),
	}
	log := logger.ForRun(e.logger, summary.RunID, summary.AsOf)

	log.Info("Starting cohort extraction", zap.String("output", e.output))

	err := e.run(ctx, log, today, summary)
	e.finish(ctx, log, summary, err)
	return summary, err
}

func (e *Extractor) run(ctx context.Context, log *zap.Logger, today time.Time, summary *models.RunSummary) error {
	db, err := e.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("Error closing database connection", zap.Error(err))
		}
	}()

	rows, err := repository.NewCohortRepository(db, log).FetchEncounters(ctx, e.vocab)
	if err != nil {
		return err
	}

	filter := cohort.Filter{Vocabulary: e.vocab, Criteria: e.criteria, Today: today}
	cohortRows, stats := filter.Apply(rows)

	summary.Fetched = stats.Fetched
	summary.DroppedVocabulary = stats.DroppedVocabulary
	summary.DroppedIdentifier = stats.DroppedIdentifier
	summary.DroppedRecency = stats.DroppedRecency
	summary.DroppedAge = stats.DroppedAge
	summary.Kept = stats.Kept

	log.Debug("Applied cohort filters",
		zap.String("recency_cutoff", filter.Cutoff().Format(cohort.DateLayout)),
		zap.Int("fetched", stats.Fetched),
		zap.Int("dropped_vocabulary", stats.DroppedVocabulary),
		zap.Int("dropped_identifier", stats.DroppedIdentifier),
		zap.Int("dropped_recency", stats.DroppedRecency),
		zap.Int("dropped_age", stats.DroppedAge),
	)

	if err := e.write(e.output, e.sheet, cohortRows); err != nil {
		return fmt.Errorf("failed to export cohort: %w", err)
	}
	summary.OutputPath = e.output

	return nil
}

func (e *Extractor) finish(ctx context.Context, log *zap.Logger, summary *models.RunSummary, runErr error) {
	summary.FinishedAt = e.now()
	if runErr != nil {
		summary.Status = models.RunStatusFailed
		summary.Error = runErr.Error()
		log.Error("Cohort extraction failed", zap.Error(runErr))
	} else {
		summary.Status = models.RunStatusSucceeded
		log.Info("Cohort extraction finished",
			zap.Int("fetched", summary.Fetched),
			zap.Int("kept", summary.Kept),
			zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
		)
	}

	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, summary); err != nil {
		log.Warn("Failed to publish run summary", zap.Error(err))
	}
}
