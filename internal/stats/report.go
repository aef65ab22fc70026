package stats

import (
	"context"

	"github.com/verte-zerg/lovefit/internal/model"
)

// RunLister is the store surface reports need.
type RunLister interface {
	ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunAggregate, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	Runs []model.RunAggregate
}

// BuildReport loads runs for rendering.
func BuildReport(ctx context.Context, st RunLister, cfg model.HistoryConfig) (Report, error) {
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	return Report{Runs: runs}, nil
}
