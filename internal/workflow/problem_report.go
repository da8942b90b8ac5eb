package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/queue"
)

const (
	maxReportTitle       = 200
	maxReportDescription = 5000
)

// CreateProblemReport files a pending report on behalf of the actor.
func (e *Engine) CreateProblemReport(ctx context.Context, a policy.Actor, in model.NewProblemReport) (*model.ProblemReport, error) {
	defer observe("create_problem_report", time.Now())
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = model.ReportCategory(strings.ToLower(strings.TrimSpace(string(in.Category))))
	switch {
	case in.Title == "":
		return nil, apperr.Validation("title is required")
	case len(in.Title) > maxReportTitle:
		return nil, apperr.Validation("title exceeds %d characters", maxReportTitle)
	case in.Description == "":
		return nil, apperr.Validation("description is required")
	case len(in.Description) > maxReportDescription:
		return nil, apperr.Validation("description exceeds %d characters", maxReportDescription)
	case !in.Category.Valid():
		return nil, apperr.Validation("unknown category %q", in.Category)
	}

	now := e.now()
	r := &model.ProblemReport{
		ReporterUserID: a.UserID,
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Status:         model.ReportPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.reports.Create(ctx, r); err != nil {
		e.logFailure("create_problem_report", err)
		return nil, err
	}

	ev := e.event(a, queue.EventReportCreated, r.ID)
	ev.Machine, ev.To = ReportMachine.Name(), string(r.Status)
	ev.Data = map[string]string{"category": string(r.Category)}
	e.emit(ctx, ev)
	return r, nil
}

// SetProblemReportStatus triages a report. Any therapist or admin may
// move it; reporters without staff capability cannot.
func (e *Engine) SetProblemReportStatus(ctx context.Context, a policy.Actor, id uint64, to model.ReportStatus) (*model.ProblemReport, error) {
	defer observe("set_problem_report_status", time.Now())
	machine := ReportMachine.Name()
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		e.recordTransition(machine, "", string(to), a, id, err)
		return nil, err
	}
	if !ReportMachine.Known(to) {
		err := apperr.Validation("unknown problem report status %q", to)
		e.recordTransition(machine, "", string(to), a, id, err)
		return nil, err
	}

	var from model.ReportStatus
	r, err := e.reports.Transition(ctx, id, func(r *model.ProblemReport) error {
		from = r.Status
		if err := ReportMachine.Check(r.Status, to); err != nil {
			return err
		}
		r.Status = to
		r.UpdatedAt = e.now()
		return nil
	})
	e.recordTransition(machine, string(from), string(to), a, id, err)
	if err != nil {
		return nil, err
	}

	ev := e.event(a, machine+"."+string(to), r.ID)
	ev.Machine, ev.From, ev.To = machine, string(from), string(to)
	ev.Data = map[string]string{"reporter_user_id": uintStr(r.ReporterUserID)}
	e.emit(ctx, ev)
	return r, nil
}

// GetProblemReport returns a report to its reporter or to staff.
func (e *Engine) GetProblemReport(ctx context.Context, a policy.Actor, id uint64) (*model.ProblemReport, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	r, err := e.reports.GetByID(ctx, id)
	if err != nil {
		e.logFailure("get_problem_report", err)
		return nil, err
	}
	if r.ReporterUserID != a.UserID && !policy.IsStaff(a) {
		return nil, apperr.NotFound("problem report %d", id)
	}
	return r, nil
}

// MyProblemReports lists the reports filed by the actor.
func (e *Engine) MyProblemReports(ctx context.Context, a policy.Actor, f model.ReportFilter) ([]model.ProblemReport, int, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, 0, err
	}
	f.ReporterUserID = a.UserID
	return e.listReports(ctx, f)
}

// ListProblemReports is the staff triage queue.
func (e *Engine) ListProblemReports(ctx context.Context, a policy.Actor, f model.ReportFilter) ([]model.ProblemReport, int, error) {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return nil, 0, err
	}
	return e.listReports(ctx, f)
}

func (e *Engine) listReports(ctx context.Context, f model.ReportFilter) ([]model.ProblemReport, int, error) {
	if f.Status != "" && !ReportMachine.Known(f.Status) {
		return nil, 0, apperr.Validation("unknown problem report status %q", f.Status)
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, 0, apperr.Validation("unknown category %q", f.Category)
	}
	items, total, err := e.reports.List(ctx, f)
	e.logFailure("list_problem_reports", err)
	return items, total, err
}
