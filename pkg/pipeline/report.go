package pipeline

import (
	"fmt"
	"io"
	"time"
)

// Report summarises a finished run.
type Report struct {
	RunID string

	PagesPlanned int
	PagesFailed  int

	// ItemsSeen counts every item decoded from successful pages.
	ItemsSeen    int
	OwnerMissing int
	Duplicates   int
	Dispatched   int

	Succeeded   int
	Failed      int
	ExpectedMax int

	Duration time.Duration
}

// Diagnostics returns the number of diagnostic lines the run emitted.
func (r *Report) Diagnostics() int {
	return r.PagesFailed + r.OwnerMissing + r.Failed
}

// WriteTo prints the report in a human readable form.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w,
		"run %s finished in %s\n"+
			"  pages:   %d planned, %d failed\n"+
			"  items:   %d seen, %d without owner, %d duplicate\n"+
			"  stars:   %d dispatched, %d succeeded, %d failed\n"+
			"  progress: %d/%d\n",
		r.RunID, r.Duration.Round(time.Millisecond),
		r.PagesPlanned, r.PagesFailed,
		r.ItemsSeen, r.OwnerMissing, r.Duplicates,
		r.Dispatched, r.Succeeded, r.Failed,
		r.Succeeded, r.ExpectedMax,
	)
	return int64(n), err
}
