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

// ReviewerRole is the single role allowed to decide therapist applications.
const ReviewerRole = model.RoleAdmin

func validateApplicationFields(f *model.ApplicationFields) error {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Specialty = strings.TrimSpace(f.Specialty)
	f.LicenseNumber = strings.TrimSpace(f.LicenseNumber)
	f.Certification = strings.TrimSpace(f.Certification)
	f.DocumentReference = strings.TrimSpace(f.DocumentReference)

	switch {
	case f.FullName == "":
		return apperr.Validation("full_name is required")
	case f.Specialty == "":
		return apperr.Validation("specialty is required")
	case f.LicenseNumber == "":
		return apperr.Validation("license_number is required")
	case f.Email != "" && !strings.Contains(f.Email, "@"):
		return apperr.Validation("email %q is not valid", f.Email)
	case f.ExperienceYears < 0 || f.ExperienceYears > 80:
		return apperr.Validation("experience_years must be between 0 and 80")
	}
	return nil
}

// SubmitApplication files (or, while still pending, replaces) the
// applicant's therapist application. Only holders of the plain user role
// may apply, and a decided application must be reset to pending by a
// reviewer before the applicant can submit again.
func (e *Engine) SubmitApplication(ctx context.Context, a policy.Actor, applicantID uint64, f model.ApplicationFields) (*model.TherapistApplication, error) {
	defer observe("submit_application", time.Now())
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	if applicantID == 0 {
		applicantID = a.UserID
	}
	if applicantID != a.UserID && !policy.IsAdmin(a) {
		return nil, apperr.PermissionDenied("cannot apply on behalf of user %d", applicantID)
	}
	if err := validateApplicationFields(&f); err != nil {
		return nil, err
	}

	now := e.now()
	app, err := e.applications.Submit(ctx, applicantID, func(cur *model.TherapistApplication, applicant *model.User) (*model.TherapistApplication, error) {
		if applicant.Role != model.RoleUser {
			return nil, apperr.Conflict("user %d already holds role %q", applicant.ID, applicant.Role)
		}
		if cur != nil && cur.Status != model.ApplicationPending {
			return nil, apperr.Conflict("application %d is %s; it must be reset to pending first", cur.ID, cur.Status)
		}
		next := &model.TherapistApplication{
			ApplicantUserID: applicantID,
			Status:          model.ApplicationPending,
			CreatedAt:       now,
		}
		if cur != nil {
			*next = *cur
		}
		next.FullName = f.FullName
		next.Email = f.Email
		next.Specialty = f.Specialty
		next.LicenseNumber = f.LicenseNumber
		next.Certification = f.Certification
		next.ExperienceYears = f.ExperienceYears
		next.DocumentReference = f.DocumentReference
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		e.logFailure("submit_application", err)
		return nil, err
	}

	ev := e.event(a, queue.EventApplicationSubmitted, app.ID)
	ev.Machine = ApplicationMachine.Name()
	ev.To = string(app.Status)
	ev.Data = map[string]string{"applicant_user_id": uintStr(applicantID), "specialty": app.Specialty}
	e.emit(ctx, ev)
	return app, nil
}

// SetApplicationStatus moves an application along one edge of its
// machine. Approval promotes a plain user to therapist in the same unit of
// work; a reset to pending reverts that promotion under ResetDemote.
func (e *Engine) SetApplicationStatus(ctx context.Context, a policy.Actor, id uint64, to model.ApplicationStatus) (*model.TherapistApplication, error) {
	defer observe("set_application_status", time.Now())
	machine := ApplicationMachine.Name()
	if err := policy.Authorize(a, ReviewerRole); err != nil {
		e.recordTransition(machine, "", string(to), a, id, err)
		return nil, err
	}
	if !ApplicationMachine.Known(to) {
		err := apperr.Validation("unknown application status %q", to)
		e.recordTransition(machine, "", string(to), a, id, err)
		return nil, err
	}

	var (
		from       model.ApplicationStatus
		roleBefore model.Role
	)
	app, applicant, err := e.applications.Transition(ctx, id, func(app *model.TherapistApplication, applicant *model.User) error {
		from, roleBefore = app.Status, applicant.Role
		if err := ApplicationMachine.Check(app.Status, to); err != nil {
			return err
		}
		app.Status = to
		app.UpdatedAt = e.now()
		e.applyRoleCascade(from, app, applicant)
		return nil
	})
	e.recordTransition(machine, string(from), string(to), a, id, err)
	if err != nil {
		return nil, err
	}

	ev := e.event(a, machine+"."+string(to), app.ID)
	ev.Machine, ev.From, ev.To = machine, string(from), string(to)
	ev.Data = map[string]string{
		"applicant_user_id": uintStr(applicant.ID),
		"role_before":       string(roleBefore),
		"role_after":        string(applicant.Role),
	}
	e.emit(ctx, ev)
	if roleBefore != applicant.Role {
		rev := e.event(a, queue.EventUserRoleChanged, applicant.ID)
		rev.From, rev.To = string(roleBefore), string(applicant.Role)
		rev.Data = map[string]string{"cause": machine + "." + string(to)}
		e.emit(ctx, rev)
	}
	return app, nil
}

// applyRoleCascade mutates the applicant's role for the edge from→app.Status.
// It never lowers a role it did not grant.
func (e *Engine) applyRoleCascade(from model.ApplicationStatus, app *model.TherapistApplication, applicant *model.User) {
	switch {
	case app.Status == model.ApplicationApproved:
		if applicant.Role == model.RoleUser {
			applicant.Role = model.RoleTherapist
			app.PromotedRole = model.RoleTherapist
		} else {
			app.PromotedRole = ""
		}
	case app.Status == model.ApplicationPending && from == model.ApplicationApproved:
		if e.resetPolicy == ResetDemote &&
			app.PromotedRole == model.RoleTherapist &&
			applicant.Role == model.RoleTherapist {
			applicant.Role = model.RoleUser
		}
		app.PromotedRole = ""
	}
}

// MyApplication returns the caller's own application.
func (e *Engine) MyApplication(ctx context.Context, a policy.Actor) (*model.TherapistApplication, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	app, err := e.applications.GetByApplicant(ctx, a.UserID)
	e.logFailure("my_application", err)
	return app, err
}

// GetApplication returns an application to its applicant or a reviewer.
func (e *Engine) GetApplication(ctx context.Context, a policy.Actor, id uint64) (*model.TherapistApplication, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	app, err := e.applications.GetByID(ctx, id)
	if err != nil {
		e.logFailure("get_application", err)
		return nil, err
	}
	if app.ApplicantUserID != a.UserID && !policy.HasCapability(a.Role, ReviewerRole) {
		return nil, apperr.NotFound("therapist application %d", id)
	}
	return app, nil
}

// ListApplications is the reviewer queue.
func (e *Engine) ListApplications(ctx context.Context, a policy.Actor, f model.ApplicationFilter) ([]model.TherapistApplication, int, error) {
	if err := policy.Authorize(a, ReviewerRole); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !ApplicationMachine.Known(f.Status) {
		return nil, 0, apperr.Validation("unknown application status %q", f.Status)
	}
	items, total, err := e.applications.List(ctx, f)
	e.logFailure("list_applications", err)
	return items, total, err
}
