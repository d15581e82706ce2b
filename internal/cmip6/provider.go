package cmip6

import (
	"context"
)

// Retriever abstracts the remote data store that turns a request into a
// downloadable archive (e.g. the Copernicus Climate Data Store).
type Retriever interface {
	Retrieve(ctx context.Context, datasetID string, req Request) (Result, error)
}

// Result is a handle on a completed retrieval.
type Result interface {
	Download(ctx context.Context, path string) error
}

// Reporter receives user-facing progress for each step of a batch.
type Reporter interface {
	Requesting(t Triple)
	Extracted(t Triple, path string)
	NoDataFile(t Triple)
	Removed(name string)
	ArchiveRemoved(path string)
	Failed(o Outcome)
	Done(summary RunSummary, dataDir string)
}

// Store is the contract the in-memory outcome store must satisfy.
type Store interface {
	StartRun(summary RunSummary)
	SaveOutcome(runID string, o Outcome)
	FinishRun(summary RunSummary)
}
