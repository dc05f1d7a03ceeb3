package ingest

// EventKind classifies the outcome of one processed row.
type EventKind int

const (
	EventAccepted EventKind = iota
	EventRejected
	EventDuplicate
)

// RowEvent is one entry in the append-only outcome log of a batch. Counters
// on the DataUpload are always a fold over these events, never independently
// mutated, so a run can be inspected mid-flight by re-folding.
type RowEvent struct {
	RowIndex int
	Kind     EventKind
	// Inserted reports whether a duplicate row was persisted anyway
	// (skip_duplicates=false).
	Inserted bool
}

// Counts holds the folded outcome totals of a batch.
type Counts struct {
	Total      int
	Successful int
	Failed     int
	Duplicates int
}

// foldCounts reduces the event log into upload counters. Duplicates that were
// inserted anyway count as successful as well as duplicate.
func foldCounts(events []RowEvent) Counts {
	var c Counts
	for _, ev := range events {
		c.Total++
		switch ev.Kind {
		case EventAccepted:
			c.Successful++
		case EventRejected:
			c.Failed++
		case EventDuplicate:
			c.Duplicates++
			if ev.Inserted {
				c.Successful++
			}
		}
	}
	return c
}

// terminalStatus derives the final upload status from folded counts: clean
// runs complete, mixed runs are partial, runs with rows but no successes and
// at least one failure are failed. An all-duplicate run completes.
func terminalStatus(c Counts) UploadStatus {
	switch {
	case c.Failed == 0:
		return UploadStatusCompleted
	case c.Successful > 0:
		return UploadStatusPartial
	default:
		return UploadStatusFailed
	}
}
