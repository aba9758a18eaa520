package ingest

import (
	schemauc "github.com/kailas-cloud/mastrvec/internal/usecase/schema"
)

// Report summarises a run.
type Report struct {
	Mode        Mode
	Collections []CollectionReport
}

// CollectionReport summarises one collection.
type CollectionReport struct {
	Name             string
	FilesMatched     int
	FilesProcessed   int
	FilesFailed      int
	FilesUnchanged   int
	RecordsExtracted int
	RecordsInserted  int
	RecordsSkipped   int
	Batches          int
	FailedBatches    int
	Schema           schemauc.Outcome
	// Err is set when the collection was abandoned.
	Err error
}

// Inserted sums inserted records over all collections.
func (r Report) Inserted() int {
	n := 0
	for _, c := range r.Collections {
		n += c.RecordsInserted
	}
	return n
}

// FailedCollections counts abandoned collections.
func (r Report) FailedCollections() int {
	n := 0
	for _, c := range r.Collections {
		if c.Err != nil {
			n++
		}
	}
	return n
}
