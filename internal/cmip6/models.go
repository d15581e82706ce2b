package cmip6

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	// ScenarioHistorical is the only experiment with a pre-2015 year range.
	ScenarioHistorical = "historical"

	// DataFileExt identifies the member extracted from each archive.
	DataFileExt = ".nc"

	archiveExt = ".zip"
)

// AuxiliaryExts lists extensions of incidental files removed after extraction.
var AuxiliaryExts = []string{".json", ".png"}

// Triple is a (model, scenario, variable) combination driving one iteration.
type Triple struct {
	Model    string `json:"model"`
	Scenario string `json:"scenario"`
	Variable string `json:"variable"`
}

// BaseName returns "<model>_<scenario>_<variable>".
func (t Triple) BaseName() string {
	return t.Model + "_" + t.Scenario + "_" + t.Variable
}

// Key returns a canonical string key for indexing this triple in stores.
func (t Triple) Key() string {
	return t.Model + "/" + t.Scenario + "/" + t.Variable
}

func (t Triple) String() string {
	return fmt.Sprintf("%s | model=%s | scenario=%s", t.Variable, t.Model, t.Scenario)
}

// OutputDir returns <root>/<model>/<scenario>.
func OutputDir(root string, t Triple) string {
	return filepath.Join(root, t.Model, t.Scenario)
}

// OutputPath returns <root>/<model>/<scenario>/<model>_<scenario>_<variable>.nc.
func OutputPath(root string, t Triple) string {
	return filepath.Join(OutputDir(root, t), t.BaseName()+DataFileExt)
}

// ArchivePath returns the scenario/model scoped location the archive is downloaded to.
func ArchivePath(root string, t Triple) string {
	return filepath.Join(OutputDir(root, t), t.BaseName()+archiveExt)
}

// Request is the descriptor submitted to the retrieval service.
// It is built fresh per triple and never modified afterwards.
type Request struct {
	TemporalResolution string   `json:"temporal_resolution"`
	Experiment         string   `json:"experiment"`
	Variable           string   `json:"variable"`
	Model              string   `json:"model"`
	Month              []string `json:"month"`
	Year               []string `json:"year"`
}

// NewRequest builds the request descriptor for a triple.
func NewRequest(c Catalog, t Triple) Request {
	return Request{
		TemporalResolution: c.TemporalResolution,
		Experiment:         t.Scenario,
		Variable:           t.Variable,
		Model:              t.Model,
		Month:              Months(),
		Year:               c.YearsFor(t.Scenario),
	}
}

// Status tags the result of processing one triple.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusNoDataFile means the archive held no .nc member. It is not an error.
	StatusNoDataFile        Status = "no-data-file"
	StatusRetrievalFailure  Status = "retrieval-failure"
	StatusExtractionFailure Status = "extraction-failure"
	StatusFilesystemFailure Status = "filesystem-failure"
)

// Failed reports whether the status is logged to the error log.
func (s Status) Failed() bool {
	switch s {
	case StatusRetrievalFailure, StatusExtractionFailure, StatusFilesystemFailure:
		return true
	default:
		return false
	}
}

// Outcome records what happened to one triple.
type Outcome struct {
	Triple     Triple        `json:"triple"`
	Status     Status        `json:"status"`
	OutputPath string        `json:"outputPath,omitempty"`
	Removed    []string      `json:"removed,omitempty"`
	Err        error         `json:"-"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ErrorLine renders the error log entry for a failed outcome.
func (o Outcome) ErrorLine() string {
	return fmt.Sprintf("ERROR processing %s for %s/%s: %s",
		o.Triple.Variable, o.Triple.Model, o.Triple.Scenario, o.Message)
}

// RunSummary describes a whole batch run.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	NoData     int       `json:"noData"`
	Failed     int       `json:"failed"`
}

// Count folds an outcome into the summary counters.
func (r *RunSummary) Count(o Outcome) {
	r.Total++
	switch {
	case o.Status == StatusSuccess:
		r.Succeeded++
	case o.Status == StatusNoDataFile:
		r.NoData++
	case o.Status.Failed():
		r.Failed++
	}
}
