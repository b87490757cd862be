package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/pkg/inference"
)

type fakeInference struct {
	mu       sync.Mutex
	generate func(req inference.GenerateRequest) (*inference.GenerateResponse, error)
	checkErr map[string]error
	calls    []inference.GenerateRequest
	checks   []string
}

func (f *fakeInference) Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.generate
	f.mu.Unlock()

	if fn == nil {
		return &inference.GenerateResponse{Content: analysisJSON("other", "ok")}, nil
	}
	return fn(req)
}

func (f *fakeInference) CheckModel(ctx context.Context, modelID string) error {
	f.mu.Lock()
	f.checks = append(f.checks, modelID)
	f.mu.Unlock()
	return f.checkErr[modelID]
}

func (f *fakeInference) ID() string { return "fake" }

func (f *fakeInference) generateCalls() []inference.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]inference.GenerateRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func analysisJSON(category, summary string) string {
	return fmt.Sprintf(`{"category":%q,"category_explanation":"because","summary":%q,"sentiment":"Neutral","suggested_action":"act","suggestion_link":"https://example.com"}`, category, summary)
}

type fakeRunner struct {
	mu             sync.Mutex
	submitted      []domain.BatchSubmission
	submitErr      error
	onSubmit       func(sub domain.BatchSubmission)
	statuses       []domain.JobState
	statusErr      error
	statusErrFirst int
	statusN        int
	active         int
	activeErr      error
	prefixes       []string
	min            int
}

func (r *fakeRunner) Submit(ctx context.Context, sub domain.BatchSubmission) (string, error) {
	r.mu.Lock()
	r.submitted = append(r.submitted, sub)
	hook := r.onSubmit
	r.mu.Unlock()

	if r.submitErr != nil {
		return "", r.submitErr
	}
	if hook != nil {
		hook(sub)
	}
	return "job-arn-" + sub.JobName, nil
}

func (r *fakeRunner) Status(ctx context.Context, jobID string) (domain.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.statusN
	r.statusN++

	if call < r.statusErrFirst {
		return domain.JobState{}, errors.New("status backend unavailable")
	}
	if r.statusErr != nil {
		return domain.JobState{}, r.statusErr
	}

	if len(r.statuses) == 0 {
		return domain.JobState{Status: domain.BatchJobInProgress}, nil
	}

	idx := call - r.statusErrFirst
	if idx >= len(r.statuses) {
		idx = len(r.statuses) - 1
	}

	return r.statuses[idx], nil
}

func (r *fakeRunner) CountActive(ctx context.Context, prefix string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefixes = append(r.prefixes, prefix)
	if r.activeErr != nil {
		return 0, r.activeErr
	}
	return r.active, nil
}

func (r *fakeRunner) MinRecordCount() int {
	if r.min > 0 {
		return r.min
	}
	return 1
}

type fakeSource struct {
	mu            sync.Mutex
	events        []domain.EventRecord
	countOverride int
	countErr      error
	listErr       error
	countCalls    int
	listCalls     int
	onCount       func()
}

func (s *fakeSource) Count(ctx context.Context) (int, error) {
	if s.onCount != nil {
		s.onCount()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.countCalls++
	if s.countErr != nil {
		return 0, s.countErr
	}
	if s.countOverride > 0 {
		return s.countOverride, nil
	}
	return len(s.events), nil
}

func (s *fakeSource) List(ctx context.Context) ([]domain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.events, nil
}

type fakeParams struct {
	mode     domain.Mode
	modeErr  error
	since    time.Time
	sinceErr error
}

func (p *fakeParams) Mode(ctx context.Context) (domain.Mode, error) {
	if p.modeErr != nil {
		return "", p.modeErr
	}
	return p.mode, nil
}

func (p *fakeParams) SetMode(ctx context.Context, mode domain.Mode) error {
	p.mode = mode
	return nil
}

func (p *fakeParams) EventsSince(ctx context.Context) (time.Time, error) {
	if p.sinceErr != nil {
		return time.Time{}, p.sinceErr
	}
	return p.since, nil
}

func (p *fakeParams) SetEventsSince(ctx context.Context, since time.Time) error {
	p.since = since
	return nil
}

type fakeOutcomes struct {
	mu        sync.Mutex
	recorded  []domain.RunOutcome
	recordErr error
}

func (o *fakeOutcomes) Record(ctx context.Context, outcome domain.RunOutcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.recordErr != nil {
		return o.recordErr
	}
	o.recorded = append(o.recorded, outcome)
	return nil
}

func (o *fakeOutcomes) Latest(ctx context.Context, mode domain.Mode) (domain.RunOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.recorded) - 1; i >= 0; i-- {
		if o.recorded[i].Mode == mode {
			return o.recorded[i], nil
		}
	}
	return domain.RunOutcome{}, domain.ErrOutcomeNotFound
}

func (o *fakeOutcomes) Recent(ctx context.Context, limit int) ([]domain.RunOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if limit > len(o.recorded) {
		limit = len(o.recorded)
	}
	out := make([]domain.RunOutcome, limit)
	copy(out, o.recorded[len(o.recorded)-limit:])
	return out, nil
}

func (o *fakeOutcomes) last() (domain.RunOutcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.recorded) == 0 {
		return domain.RunOutcome{}, false
	}
	return o.recorded[len(o.recorded)-1], true
}

type staticTaxonomy struct {
	tax domain.Taxonomy
	err error
}

func (s staticTaxonomy) Load(ctx context.Context) (domain.Taxonomy, error) {
	if s.err != nil {
		return domain.Taxonomy{}, s.err
	}
	return s.tax, nil
}

func testTaxonomy() domain.Taxonomy {
	tax, err := domain.NewTaxonomy([]domain.Category{
		{Label: "throttling", Description: "Rate limiting problems."},
		{Label: "limit-reached", Description: "Quota exhausted."},
	})
	if err != nil {
		panic(err)
	}
	return tax
}

func caseEvent(id string) domain.SupportCase {
	return domain.SupportCase{
		CaseID:      id,
		DisplayID:   "d-" + id,
		Subject:     "subject " + id,
		ServiceCode: "svc",
		Severity:    "low",
		Status:      "resolved",
		SubmittedBy: "user@example.com",
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Thread:      "body " + id,
	}
}

func caseEvents(n int) []domain.EventRecord {
	events := make([]domain.EventRecord, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, caseEvent(fmt.Sprintf("case-%03d", i)))
	}
	return events
}

func testRunContext(route domain.Route) domain.RunContext {
	return domain.RunContext{
		RunID:     "run-test",
		Mode:      domain.ModeCases,
		Window:    "all-20250601T120000Z",
		StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Route:     route,
	}
}
