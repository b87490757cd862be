// Package engine implements the orchestration of a single analysis run: mode
// resolution, precondition gating, volume routing, the on-demand and batch
// execution paths and the final aggregation.
package engine

import (
	"fmt"
	"time"

	"github.com/sifthq/sift/internal/domain"
)

const (
	reportsRoot = "reports"
	stagingRoot = "staging"

	timeLayout = "20060102T150405Z"
)

// windowLabel names the ingest window of a run. A zero lower bound means the
// watermark was never set and the window is open-ended at the start.
func windowLabel(since, now time.Time) string {
	lower := "all"
	if !since.IsZero() {
		lower = since.UTC().Format(timeLayout)
	}
	return fmt.Sprintf("%s-%s", lower, now.UTC().Format(timeLayout))
}

func ondemandPartition(mode domain.Mode, window string) string {
	return fmt.Sprintf("%s/%s/ondemand/%s", reportsRoot, mode, window)
}

func batchPartition(mode domain.Mode, stamp time.Time) string {
	return fmt.Sprintf("%s/%s/batch/%s", reportsRoot, mode, stamp.UTC().Format(timeLayout))
}

func eventKey(partition, eventID string) string {
	return fmt.Sprintf("%s/events/%s.json", partition, eventID)
}

func summaryKey(partition string) string {
	return partition + "/summary.json"
}

func stagingInputKey(jobName string) string {
	return fmt.Sprintf("%s/%s/input.jsonl", stagingRoot, jobName)
}

func stagingOutputPrefix(jobName string) string {
	return fmt.Sprintf("%s/%s/output/", stagingRoot, jobName)
}

func stagingPrefix(jobName string) string {
	return fmt.Sprintf("%s/%s/", stagingRoot, jobName)
}

func runKey(mode domain.Mode, runID string) string {
	return fmt.Sprintf("%s/%s/runs/%s.json", reportsRoot, mode, runID)
}
