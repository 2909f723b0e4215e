package pipeline

// Outcome summarizes one target's run for the orchestrator and the
// notification channel.
type Outcome struct {
	Target string
	// Processed lists document labels that produced new output.
	Processed []string
	// Skipped lists documents left untouched (unchanged hash, existing data).
	Skipped []string
	// Failed lists document labels or page identifiers that errored.
	Failed []string
	// Hashes carries the digests of documents processed without any page
	// failure, to be recorded in the processed-hash store.
	Hashes map[string]string
}

// NewOutcome creates an empty outcome for a target.
func NewOutcome(target string) *Outcome {
	return &Outcome{Target: target, Hashes: map[string]string{}}
}

// OK reports whether the run had no failures.
func (o *Outcome) OK() bool {
	return len(o.Failed) == 0
}

// Updated reports whether any document produced new output.
func (o *Outcome) Updated() bool {
	return len(o.Processed) > 0
}
