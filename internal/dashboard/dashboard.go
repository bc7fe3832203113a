// Package dashboard runs one search interaction: remote search, result file
// fetch, rendering and the optional report, producing a View.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
	"github.com/fairlabs/stms-dashboard/internal/remote"
	"github.com/fairlabs/stms-dashboard/internal/render"
)

// MsgNoResults is shown when the search function reports a non-200 status.
const MsgNoResults = "Error: Could not retrieve results"

// RecordTimeout bounds how long a search waits on event publishing.
const RecordTimeout = 2 * time.Second

// Stage is a step of the interaction.
type Stage string

// Stages in the order a successful interaction passes through them.
const (
	StageIdle                Stage = "idle"
	StageSubmitting          Stage = "submitting"
	StageAwaitingSearch      Stage = "awaiting_search"
	StageRendered            Stage = "rendered"
	StageSubmittingReport    Stage = "submitting_report"
	StageAwaitingReport      Stage = "awaiting_report"
	StageRenderedWithReports Stage = "rendered_with_reports"
)

// Remote calls the search and report functions.
type Remote interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	Report(ctx context.Context, req models.ReportRequest) (*models.ReportResponse, error)
}

// TableFetcher loads the result file named by a search response.
type TableFetcher interface {
	FetchTable(ctx context.Context, filepath string) (*models.ResultTable, error)
}

// DownloadStore keeps CSV exports until the user downloads them.
type DownloadStore interface {
	Put(ctx context.Context, id string, data []byte) error
}

// EventRecorder receives one event per submitted search.
type EventRecorder interface {
	Record(ctx context.Context, ev models.SearchEvent) error
}

// View is the render model of one interaction. Only Stage and Error are set
// unless the interaction succeeded.
type View struct {
	Stage      Stage                   `json:"stage"`
	Error      string                  `json:"error,omitempty"`
	Chart      *render.Chart           `json:"chart,omitempty"`
	Summaries  []render.ClusterSummary `json:"summaries,omitempty"`
	Table      *render.Table           `json:"table,omitempty"`
	DownloadID string                  `json:"download_id,omitempty"`
	Reports    []render.ReportBlock    `json:"reports,omitempty"`
}

// Dashboard wires the collaborators of a search interaction.
type Dashboard struct {
	remote    Remote
	tables    TableFetcher
	downloads DownloadStore
	events    EventRecorder
	log       *slog.Logger
	now       func() time.Time
	newID     func() string

	recordTimeout time.Duration
}

// New builds a Dashboard. events may be nil to disable event recording.
func New(functions Remote, tables TableFetcher, downloads DownloadStore, events EventRecorder, log *slog.Logger) *Dashboard {
	if log == nil {
		log = logger.Discard()
	}
	return &Dashboard{
		remote:    functions,
		tables:    tables,
		downloads: downloads,
		events:    events,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,

		recordTimeout: RecordTimeout,
	}
}

// Handle runs one interaction. A nil request means a required input was
// missing: nothing is called and an idle view is returned. Any failure also
// returns an idle view, carrying the error message.
func (d *Dashboard) Handle(ctx context.Context, req *models.SearchRequest) View {
	if req == nil {
		return View{Stage: StageIdle}
	}

	id := d.newID()
	started := d.now()
	ev := models.NewSearchEvent(id, started, *req)
	log := d.log.With(slog.String("search_id", id))

	view, err := d.run(ctx, log, *req, id, &ev)
	ev.DurationMS = d.now().Sub(started).Milliseconds()
	if err != nil {
		log.Warn("search failed", slog.Any("err", err))
		ev.Outcome = models.OutcomeFailed
		ev.Error = err.Error()
		d.record(ctx, log, ev)
		return View{Stage: StageIdle, Error: errorMessage(err)}
	}

	ev.Outcome = models.OutcomeRendered
	d.record(ctx, log, ev)
	return view
}

func (d *Dashboard) run(ctx context.Context, log *slog.Logger, req models.SearchRequest, id string, ev *models.SearchEvent) (View, error) {
	stage := StageIdle
	advance := func(next Stage) {
		log.Debug("stage", slog.String("from", string(stage)), slog.String("to", string(next)))
		stage = next
	}

	advance(StageSubmitting)
	advance(StageAwaitingSearch)
	resp, err := d.remote.Search(ctx, req)
	if err != nil {
		return View{}, err
	}
	ev.Clusters = len(resp.Summaries)
	ev.Filepath = resp.Filepath

	table, err := d.tables.FetchTable(ctx, resp.Filepath)
	if err != nil {
		return View{}, fmt.Errorf("fetch result file: %w", err)
	}
	ev.Articles = table.Len()

	dataTable := render.DataTable(table)
	csvData, err := render.EncodeCSV(dataTable)
	if err != nil {
		return View{}, fmt.Errorf("encode csv: %w", err)
	}

	view := View{
		Chart:     render.NewChart(table),
		Summaries: render.Summaries(resp),
		Table:     dataTable,
	}
	advance(StageRendered)

	if req.IncludeReport {
		advance(StageSubmittingReport)
		advance(StageAwaitingReport)
		reports, err := d.remote.Report(ctx, models.ReportRequest{
			Filepath:    resp.Filepath,
			ClusterTopN: req.ClusterTopN,
			SampleSize:  req.SampleSize,
		})
		if err != nil {
			return View{}, fmt.Errorf("generate report: %w", err)
		}
		view.Reports = render.Reports(log, reports, resp.Summaries)
		ev.Reports = len(view.Reports)
		advance(StageRenderedWithReports)
	}

	// stored last so a failed report leaves nothing behind
	if err := d.downloads.Put(ctx, id, csvData); err != nil {
		return View{}, fmt.Errorf("store download: %w", err)
	}
	view.DownloadID = id
	view.Stage = stage

	log.Info("search rendered",
		slog.String("stage", string(stage)),
		slog.Int("rows", table.Len()),
		slog.Int("points", len(view.Chart.Points)),
		slog.Int("reports", len(view.Reports)),
	)
	return view, nil
}

func (d *Dashboard) record(ctx context.Context, log *slog.Logger, ev models.SearchEvent) {
	if d.events == nil {
		return
	}
	// detached so a dropped client still gets its event, bounded so a broker
	// outage does not hold the response
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.recordTimeout)
	defer cancel()
	if err := d.events.Record(ctx, ev); err != nil {
		log.Warn("record search event", slog.Any("err", err))
	}
}

func errorMessage(err error) string {
	if errors.Is(err, remote.ErrUnsuccessfulStatus) {
		return MsgNoResults
	}
	return "Error: " + err.Error()
}
