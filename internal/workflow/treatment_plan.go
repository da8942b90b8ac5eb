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

// CreateTreatmentPlan records a new Active plan. Therapists author plans
// as themselves; admins may name any therapist as author. The disorder
// must already exist in the knowledge graph.
func (e *Engine) CreateTreatmentPlan(ctx context.Context, a policy.Actor, in model.NewTreatmentPlan) (*model.TreatmentPlan, error) {
	defer observe("create_treatment_plan", time.Now())
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return nil, err
	}
	if in.TherapistUserID == 0 {
		in.TherapistUserID = a.UserID
	}
	if in.TherapistUserID != a.UserID && !policy.IsAdmin(a) {
		return nil, apperr.PermissionDenied("cannot author a plan as user %d", in.TherapistUserID)
	}
	if in.DurationWeeks < model.MinPlanWeeks || in.DurationWeeks > model.MaxPlanWeeks {
		return nil, apperr.Validation("duration_weeks must be between %d and %d, got %d",
			model.MinPlanWeeks, model.MaxPlanWeeks, in.DurationWeeks)
	}
	in.DisorderName = strings.TrimSpace(in.DisorderName)
	in.PlanText = strings.TrimSpace(in.PlanText)
	switch {
	case in.PatientUserID == 0:
		return nil, apperr.Validation("patient_user_id is required")
	case in.DisorderName == "":
		return nil, apperr.Validation("disorder_name is required")
	case in.PlanText == "":
		return nil, apperr.Validation("plan_text is required")
	}

	now := e.now()
	p := &model.TreatmentPlan{
		PatientUserID:   in.PatientUserID,
		TherapistUserID: in.TherapistUserID,
		DisorderName:    in.DisorderName,
		PlanText:        in.PlanText,
		DurationWeeks:   in.DurationWeeks,
		Status:          model.PlanActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.plans.Create(ctx, p); err != nil {
		e.logFailure("create_treatment_plan", err)
		return nil, err
	}

	ev := e.event(a, queue.EventPlanCreated, p.ID)
	ev.Machine, ev.To = PlanMachine.Name(), string(p.Status)
	ev.Data = map[string]string{
		"patient_user_id":   uintStr(p.PatientUserID),
		"therapist_user_id": uintStr(p.TherapistUserID),
		"disorder_name":     p.DisorderName,
	}
	e.emit(ctx, ev)
	return p, nil
}

// SetTreatmentPlanStatus completes or cancels an Active plan. Only the
// authoring therapist or an admin may do so.
func (e *Engine) SetTreatmentPlanStatus(ctx context.Context, a policy.Actor, id uint64, to model.PlanStatus) (*model.TreatmentPlan, error) {
	defer observe("set_treatment_plan_status", time.Now())
	machine := PlanMachine.Name()
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		e.recordTransition(machine, "", string(to), a, id, err)
		return nil, err
	}
	if !PlanMachine.Known(to) {
		err := apperr.Validation("unknown treatment plan status %q", to)
		e.recordTransition(machine, "", string(to), a, id, err)
		return nil, err
	}

	var from model.PlanStatus
	p, err := e.plans.Transition(ctx, id, func(p *model.TreatmentPlan) error {
		from = p.Status
		if !canReadPlan(a, p) {
			return apperr.NotFound("treatment plan %d", id)
		}
		if p.TherapistUserID != a.UserID && !policy.IsAdmin(a) {
			return apperr.PermissionDenied("treatment plan %d was authored by another therapist", id)
		}
		if err := PlanMachine.Check(p.Status, to); err != nil {
			return err
		}
		p.Status = to
		p.UpdatedAt = e.now()
		return nil
	})
	e.recordTransition(machine, string(from), string(to), a, id, err)
	if err != nil {
		return nil, err
	}

	ev := e.event(a, machine+"."+strings.ToLower(string(to)), p.ID)
	ev.Machine, ev.From, ev.To = machine, string(from), string(to)
	ev.Data = map[string]string{"patient_user_id": uintStr(p.PatientUserID)}
	e.emit(ctx, ev)
	return p, nil
}

func canReadPlan(a policy.Actor, p *model.TreatmentPlan) bool {
	return p.PatientUserID == a.UserID || p.TherapistUserID == a.UserID || policy.IsAdmin(a)
}

// GetTreatmentPlan returns a plan to its patient, its author or an admin.
func (e *Engine) GetTreatmentPlan(ctx context.Context, a policy.Actor, id uint64) (*model.TreatmentPlan, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	p, err := e.plans.GetByID(ctx, id)
	if err != nil {
		e.logFailure("get_treatment_plan", err)
		return nil, err
	}
	if !canReadPlan(a, p) {
		return nil, apperr.NotFound("treatment plan %d", id)
	}
	return p, nil
}

// ListTreatmentPlans scopes non-admins to plans they are party to. With no
// party filter a therapist sees the plans they authored and a plain user
// sees their own.
func (e *Engine) ListTreatmentPlans(ctx context.Context, a policy.Actor, f model.PlanFilter) ([]model.TreatmentPlan, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	if f.Status != "" && !PlanMachine.Known(f.Status) {
		return nil, apperr.Validation("unknown treatment plan status %q", f.Status)
	}
	if !policy.IsAdmin(a) {
		switch {
		case f.PatientUserID == 0 && f.TherapistUserID == 0:
			if policy.IsStaff(a) {
				f.TherapistUserID = a.UserID
			} else {
				f.PatientUserID = a.UserID
			}
		case f.PatientUserID != a.UserID && f.TherapistUserID != a.UserID:
			return nil, apperr.PermissionDenied("plans of other users are not visible")
		}
	}
	plans, err := e.plans.List(ctx, f)
	e.logFailure("list_treatment_plans", err)
	return plans, err
}
