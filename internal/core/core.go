package core

// Item represents a single feed entry discovered during ingestion.
// Items are immutable once created; the ID is dense and unique within a run,
// assigned in discovery order across all configured feeds.
type Item struct {
	ID          int    `json:"id"`          // Dense per-run identifier in discovery order
	Title       string `json:"title"`       // Entry title
	Link        string `json:"link"`        // Entry URL
	Body        string `json:"body"`        // Entry body text; may be a truncated stub
	Image       string `json:"image"`       // Optional image URL (empty when absent)
	Fingerprint uint64 `json:"fingerprint"` // 64-bit hash of the title, used for duplicate suppression
}

// Fragment is the rendered per-item output block that goes into a report.
// Fragments from the same work unit keep their input order; ordering across
// units follows worker completion.
type Fragment struct {
	ItemID   int    `json:"item_id"`  // ID of the item this fragment was produced from
	Title    string `json:"title"`    // Item title, used as the fragment heading
	Link     string `json:"link"`     // Item URL
	Summary  string `json:"summary"`  // Condensed body text or a degraded fallback
	Image    string `json:"image"`    // Optional image URL (empty when absent)
	Degraded bool   `json:"degraded"` // True when the summary is a fallback, not service output
}

// UnitBatch holds the ordered fragments produced by one summarization worker.
type UnitBatch struct {
	Unit      int        `json:"unit"`      // Zero-based work unit index
	Fragments []Fragment `json:"fragments"` // Fragments in input order within the unit
}
