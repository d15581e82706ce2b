package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/i474232898/cmip6-download/internal/cmip6"
)

// Reporter prints batch progress for humans. It implements cmip6.Reporter.
type Reporter struct {
	mu     sync.Mutex
	writer io.Writer

	bold  *color.Color
	green *color.Color
	faint *color.Color
	red   *color.Color
}

// NewReporter creates a Reporter writing to w (stdout when nil).
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{
		writer: w,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen),
		faint:  color.New(color.Faint),
		red:    color.New(color.FgRed, color.Bold),
	}
}

func (r *Reporter) Requesting(t cmip6.Triple) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bold.Fprintf(r.writer, "Requesting %s...\n", t)
}

func (r *Reporter) Extracted(_ cmip6.Triple, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.green.Fprintf(r.writer, "  >> Extracted NetCDF: %s\n", path)
}

func (r *Reporter) NoDataFile(t cmip6.Triple) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faint.Fprintf(r.writer, "  -- No NetCDF member in archive for %s\n", t.BaseName())
}

func (r *Reporter) Removed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faint.Fprintf(r.writer, "  -- Removed: %s\n", name)
}

func (r *Reporter) ArchiveRemoved(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faint.Fprintf(r.writer, "  ** Removed ZIP: %s\n", path)
	fmt.Fprintln(r.writer)
}

func (r *Reporter) Failed(o cmip6.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.red.Fprintf(r.writer, "  !! %s\n", o.ErrorLine())
	fmt.Fprintln(r.writer)
}

func (r *Reporter) Done(s cmip6.RunSummary, dataDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bold.Fprintf(r.writer, "All done. Downloaded files are in '%s/'.\n", dataDir)
	fmt.Fprintf(r.writer, "%d processed, %d extracted, %d without data file, %d failed.\n",
		s.Total, s.Succeeded, s.NoData, s.Failed)
}

// PrintPlan lists every triple with its output path.
func PrintPlan(w io.Writer, c cmip6.Catalog, dataDir string) {
	bold := color.New(color.Bold)
	triples := c.Triples()
	bold.Fprintf(w, "Dataset %s (%s): %d requests\n", c.DatasetID, c.TemporalResolution, len(triples))
	for _, t := range triples {
		years := c.YearsFor(t.Scenario)
		span := ""
		if len(years) > 0 {
			span = years[0] + "-" + years[len(years)-1]
		}
		fmt.Fprintf(w, "  %-60s %s\n", cmip6.OutputPath(dataDir, t), span)
	}
}
