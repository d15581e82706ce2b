package cmip6

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ServiceConfig carries everything a Service needs besides the retriever.
type ServiceConfig struct {
	Catalog  Catalog
	DataDir  string
	ErrorLog *ErrorLog

	// Reporter and Store are optional.
	Reporter Reporter
	Store    Store

	Logger zerolog.Logger

	// InspectFiles logs a NetCDF summary of every extracted file.
	InspectFiles bool
}

// Service runs the batch: one sequential pass over the catalog's triples.
type Service struct {
	retriever Retriever
	catalog   Catalog
	dataDir   string
	errLog    *ErrorLog
	reporter  Reporter
	store     Store
	logger    zerolog.Logger
	inspect   bool
	now       func() time.Time
}

// NewService creates a new Service.
func NewService(retriever Retriever, cfg ServiceConfig) *Service {
	s := &Service{
		retriever: retriever,
		catalog:   cfg.Catalog,
		dataDir:   cfg.DataDir,
		errLog:    cfg.ErrorLog,
		reporter:  cfg.Reporter,
		store:     cfg.Store,
		logger:    cfg.Logger,
		inspect:   cfg.InspectFiles,
		now:       time.Now,
	}
	if s.dataDir == "" {
		s.dataDir = "data"
	}
	if s.errLog == nil {
		s.errLog = NewErrorLog("error.log")
	}
	if s.reporter == nil {
		s.reporter = nopReporter{}
	}
	return s
}

// Catalog returns the catalog the service iterates over.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Run processes every triple in order. Failures of individual triples are
// recorded and never stop the batch; Run only returns an error when the error
// log cannot be opened up front or ctx is cancelled between triples.
func (s *Service) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{ID: uuid.NewString(), StartedAt: s.now().UTC()}

	if err := s.errLog.Touch(); err != nil {
		return summary, err
	}

	triples := s.catalog.Triples()
	s.logger.Info().
		Str("run", summary.ID).
		Str("dataset", s.catalog.DatasetID).
		Int("triples", len(triples)).
		Msg("batch started")
	if s.store != nil {
		s.store.StartRun(summary)
	}

	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			s.finish(&summary)
			s.logger.Warn().Str("run", summary.ID).Err(err).Msg("batch interrupted")
			return summary, err
		}

		o := s.ProcessTriple(ctx, t)
		summary.Count(o)
		if s.store != nil {
			s.store.SaveOutcome(summary.ID, o)
		}
	}

	s.finish(&summary)
	s.logger.Info().
		Str("run", summary.ID).
		Int("succeeded", summary.Succeeded).
		Int("noData", summary.NoData).
		Int("failed", summary.Failed).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("batch finished")
	s.reporter.Done(summary, s.dataDir)
	return summary, nil
}

func (s *Service) finish(summary *RunSummary) {
	summary.FinishedAt = s.now().UTC()
	if s.store != nil {
		s.store.FinishRun(*summary)
	}
}

// ProcessTriple performs one iteration: request, download, extract, clean up.
// Directories and partial files of a failed iteration are left in place.
func (s *Service) ProcessTriple(ctx context.Context, t Triple) Outcome {
	start := s.now()
	o := Outcome{Triple: t}

	dir := OutputDir(s.dataDir, t)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.fail(o, StatusFilesystemFailure, err, start)
	}

	s.reporter.Requesting(t)
	req := NewRequest(s.catalog, t)
	archive := ArchivePath(s.dataDir, t)

	res, err := s.retriever.Retrieve(ctx, s.catalog.DatasetID, req)
	if err != nil {
		return s.fail(o, StatusRetrievalFailure, err, start)
	}
	if err := res.Download(ctx, archive); err != nil {
		return s.fail(o, StatusRetrievalFailure, err, start)
	}

	dst := OutputPath(s.dataDir, t)
	member, err := ExtractFirstMember(archive, dir, DataFileExt, dst)
	if err != nil {
		return s.fail(o, StatusExtractionFailure, err, start)
	}
	if member == "" {
		o.Status = StatusNoDataFile
		s.logger.Warn().Str("triple", t.Key()).Str("archive", archive).Msg("archive holds no data file")
		s.reporter.NoDataFile(t)
	} else {
		o.Status = StatusSuccess
		o.OutputPath = dst
		s.reporter.Extracted(t, dst)
		s.inspectFile(t, dst)
	}

	removed, err := RemoveAuxiliary(dir, AuxiliaryExts)
	if err != nil {
		return s.fail(o, StatusFilesystemFailure, fmt.Errorf("clean up %s: %w", dir, err), start)
	}
	for _, name := range removed {
		s.reporter.Removed(name)
	}
	o.Removed = removed

	if err := os.Remove(archive); err != nil {
		return s.fail(o, StatusFilesystemFailure, err, start)
	}
	s.reporter.ArchiveRemoved(archive)

	o.Duration = s.now().Sub(start)
	s.logger.Debug().
		Str("triple", t.Key()).
		Str("status", string(o.Status)).
		Dur("took", o.Duration).
		Msg("triple processed")
	return o
}

func (s *Service) fail(o Outcome, status Status, err error, start time.Time) Outcome {
	o.Status = status
	o.Err = err
	o.Message = err.Error()
	o.OutputPath = ""
	o.Duration = s.now().Sub(start)

	s.logger.Error().
		Str("triple", o.Triple.Key()).
		Str("status", string(status)).
		Err(err).
		Msg("triple failed")

	if logErr := s.errLog.Append(o.ErrorLine()); logErr != nil {
		s.logger.Error().Err(logErr).Str("path", s.errLog.Path()).Msg("could not record failure")
	}
	s.reporter.Failed(o)
	return o
}

func (s *Service) inspectFile(t Triple, path string) {
	if !s.inspect {
		return
	}
	summary, err := Inspect(path)
	if err != nil {
		s.logger.Warn().Str("triple", t.Key()).Str("path", path).Err(err).Msg("could not read NetCDF summary")
		return
	}
	s.logger.Info().
		Str("triple", t.Key()).
		Strs("variables", summary.Variables).
		Strs("dims", summary.Dimensions).
		Int("attributes", summary.Attributes).
		Msg("NetCDF summary")
}

type nopReporter struct{}

func (nopReporter) Requesting(Triple) {}
func (nopReporter) Extracted(Triple, string) {}
func (nopReporter) NoDataFile(Triple) {}
func (nopReporter) Removed(string) {}
func (nopReporter) ArchiveRemoved(string) {}
func (nopReporter) Failed(Outcome) {}
func (nopReporter) Done(RunSummary, string) {}
