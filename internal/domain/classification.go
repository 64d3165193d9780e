package domain

// Classification is the typed result of the text classification collaborator
// for one market.
type Classification struct {
	MarketID string
	Slug     string
	Type     string // "1", "2" or "U"
	Domain   string // finance, sports, politics, misc
	Date     string // DD/MM/YYYY or empty
	Status   string // "ok" or "error"
	Error    string
}

const (
	ClassificationOK    = "ok"
	ClassificationError = "error"
)
