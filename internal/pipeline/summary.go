package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Summary reports the outcome of one job run.
type Summary struct {
	RunID      string
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time

	Discovered int // records listed (daily) or markets read from daily.csv (volumes, classify)
	Retained   int // markets selected for processing
	Succeeded  int
	Failed     int
	Truncated  int // succeeded markets whose data may be incomplete
	Skipped    int // markets not attempted, e.g. after cancellation or already done

	NotBinary   int
	OutOfWindow int
	MissingEnd  int
	Cached      int
}

// NewSummary starts a summary for job with a fresh run id.
func NewSummary(job string, now time.Time) Summary {
	return Summary{RunID: uuid.NewString(), Job: job, StartedAt: now.UTC()}
}

// Log writes the summary as one structured record.
func (s Summary) Log(logger *slog.Logger) {
	logger.Info("run summary",
		slog.String("run_id", s.RunID),
		slog.String("job", s.Job),
		slog.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)),
		slog.Int("discovered", s.Discovered),
		slog.Int("retained", s.Retained),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("truncated", s.Truncated),
		slog.Int("skipped", s.Skipped),
		slog.Int("not_binary", s.NotBinary),
		slog.Int("out_of_window", s.OutOfWindow),
		slog.Int("missing_end", s.MissingEnd),
		slog.Int("cached", s.Cached),
	)
}

func (s Summary) String() string {
	return fmt.Sprintf("%s run %s: discovered=%d retained=%d ok=%d failed=%d truncated=%d skipped=%d",
		s.Job, s.RunID, s.Discovered, s.Retained, s.Succeeded, s.Failed, s.Truncated, s.Skipped)
}
