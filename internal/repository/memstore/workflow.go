package memstore

import (
	"context"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/repository"
)

// Applications locks on the applicant's user key, the same key Users.Update
// uses, so reviews, submissions and role overrides of one applicant are
// serialised while other applicants proceed in parallel.
type Applications struct{ s *state }

func (r *Applications) Submit(_ context.Context, applicantID uint64, fn repository.SubmitFunc) (*model.TherapistApplication, error) {
	unlock := r.s.locks.Lock(userKey(applicantID))
	defer unlock()

	r.s.mu.RLock()
	u, ok := r.s.users[applicantID]
	var cur *model.TherapistApplication
	if id, has := r.s.appByApplicant[applicantID]; has {
		a := r.s.apps[id]
		cur = &a
	}
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("user %d", applicantID)
	}

	next, err := fn(cur, cloneUser(u))
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur == nil {
		next.ID = r.s.nextID("therapist_applications")
		r.s.appByApplicant[applicantID] = next.ID
	} else {
		next.ID = cur.ID
	}
	r.s.apps[next.ID] = *next
	out := *next
	return &out, nil
}

func (r *Applications) GetByID(_ context.Context, id uint64) (*model.TherapistApplication, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.apps[id]
	if !ok {
		return nil, apperr.NotFound("therapist application %d", id)
	}
	return &a, nil
}

func (r *Applications) GetByApplicant(_ context.Context, userID uint64) (*model.TherapistApplication, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.appByApplicant[userID]
	if !ok {
		return nil, apperr.NotFound("therapist application for user %d", userID)
	}
	a := r.s.apps[id]
	return &a, nil
}

func (r *Applications) List(_ context.Context, f model.ApplicationFilter) ([]model.TherapistApplication, int, error) {
	r.s.mu.RLock()
	out := make([]model.TherapistApplication, 0, len(r.s.apps))
	for _, a := range r.s.apps {
		if f.Status == "" || a.Status == f.Status {
			out = append(out, a)
		}
	}
	r.s.mu.RUnlock()
	newestFirst(out, func(a model.TherapistApplication) (int64, uint64) { return a.CreatedAt.UnixNano(), a.ID })
	return window(out, f.Skip, f.Limit), len(out), nil
}

func (r *Applications) Transition(_ context.Context, id uint64, fn repository.ApplicationTransitionFunc) (*model.TherapistApplication, *model.User, error) {
	r.s.mu.RLock()
	a, ok := r.s.apps[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil, apperr.NotFound("therapist application %d", id)
	}
	unlock := r.s.locks.Lock(userKey(a.ApplicantUserID))
	defer unlock()

	r.s.mu.RLock()
	app := r.s.apps[id]
	u, ok := r.s.users[app.ApplicantUserID]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil, apperr.NotFound("user %d", app.ApplicantUserID)
	}
	applicant := cloneUser(u)
	if err := fn(&app, applicant); err != nil {
		return nil, nil, err
	}

	r.s.mu.Lock()
	r.s.apps[id] = app
	stored := r.s.users[applicant.ID]
	stored.Role = applicant.Role
	r.s.users[applicant.ID] = stored
	r.s.mu.Unlock()

	outApp := app
	return &outApp, cloneUser(stored), nil
}

// Plans serialises transitions per plan id.
type Plans struct{ s *state }

func (r *Plans) Create(_ context.Context, p *model.TreatmentPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.disorders[p.DisorderName]; !ok {
		return apperr.NotFound("disorder %q", p.DisorderName)
	}
	if _, ok := r.s.users[p.PatientUserID]; !ok {
		return apperr.NotFound("user referenced by treatment plan")
	}
	if _, ok := r.s.users[p.TherapistUserID]; !ok {
		return apperr.NotFound("user referenced by treatment plan")
	}
	p.ID = r.s.nextID("treatment_plans")
	r.s.plans[p.ID] = *p
	return nil
}

func (r *Plans) GetByID(_ context.Context, id uint64) (*model.TreatmentPlan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, apperr.NotFound("treatment plan %d", id)
	}
	return &p, nil
}

func (r *Plans) List(_ context.Context, f model.PlanFilter) ([]model.TreatmentPlan, error) {
	r.s.mu.RLock()
	out := []model.TreatmentPlan{}
	for _, p := range r.s.plans {
		if f.PatientUserID != 0 && p.PatientUserID != f.PatientUserID {
			continue
		}
		if f.TherapistUserID != 0 && p.TherapistUserID != f.TherapistUserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	r.s.mu.RUnlock()
	newestFirst(out, func(p model.TreatmentPlan) (int64, uint64) { return p.CreatedAt.UnixNano(), p.ID })
	return out, nil
}

func (r *Plans) Transition(_ context.Context, id uint64, fn func(p *model.TreatmentPlan) error) (*model.TreatmentPlan, error) {
	unlock := r.s.locks.Lock(planKey(id))
	defer unlock()

	r.s.mu.RLock()
	p, ok := r.s.plans[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("treatment plan %d", id)
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	r.s.plans[id] = p
	r.s.mu.Unlock()
	return &p, nil
}

// Reports serialises transitions per report id.
type Reports struct{ s *state }

func (r *Reports) Create(_ context.Context, p *model.ProblemReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[p.ReporterUserID]; !ok {
		return apperr.NotFound("user %d", p.ReporterUserID)
	}
	p.ID = r.s.nextID("problem_reports")
	r.s.reports[p.ID] = *p
	return nil
}

func (r *Reports) GetByID(_ context.Context, id uint64) (*model.ProblemReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.reports[id]
	if !ok {
		return nil, apperr.NotFound("problem report %d", id)
	}
	return &p, nil
}

func (r *Reports) List(_ context.Context, f model.ReportFilter) ([]model.ProblemReport, int, error) {
	r.s.mu.RLock()
	out := []model.ProblemReport{}
	for _, p := range r.s.reports {
		if f.ReporterUserID != 0 && p.ReporterUserID != f.ReporterUserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p)
	}
	r.s.mu.RUnlock()
	newestFirst(out, func(p model.ProblemReport) (int64, uint64) { return p.CreatedAt.UnixNano(), p.ID })
	return window(out, f.Skip, f.Limit), len(out), nil
}

func (r *Reports) Transition(_ context.Context, id uint64, fn func(p *model.ProblemReport) error) (*model.ProblemReport, error) {
	unlock := r.s.locks.Lock(reportKey(id))
	defer unlock()

	r.s.mu.RLock()
	p, ok := r.s.reports[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("problem report %d", id)
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	r.s.reports[id] = p
	r.s.mu.Unlock()
	return &p, nil
}

type Reviews struct{ s *state }

func (r *Reviews) Create(_ context.Context, v *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[v.PatientUserID]; !ok {
		return apperr.NotFound("user referenced by review")
	}
	if _, ok := r.s.users[v.TherapistUserID]; !ok {
		return apperr.NotFound("user referenced by review")
	}
	v.ID = r.s.nextID("reviews")
	r.s.reviews[v.ID] = *v
	return nil
}

func (r *Reviews) GetByID(_ context.Context, id uint64) (*model.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.reviews[id]
	if !ok {
		return nil, apperr.NotFound("review %d", id)
	}
	return &v, nil
}

func (r *Reviews) List(_ context.Context, f model.ReviewFilter) ([]model.Review, error) {
	r.s.mu.RLock()
	out := []model.Review{}
	for _, v := range r.s.reviews {
		if f.DisorderName != "" && v.DisorderName != f.DisorderName {
			continue
		}
		if f.PatientUserID != 0 && v.PatientUserID != f.PatientUserID {
			continue
		}
		out = append(out, v)
	}
	r.s.mu.RUnlock()
	newestFirst(out, func(v model.Review) (int64, uint64) { return v.CreatedAt.UnixNano(), v.ID })
	return out, nil
}
