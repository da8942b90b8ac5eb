package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/handler"
	"github.com/iliyamo/mindwell/internal/middleware"
	"github.com/iliyamo/mindwell/internal/model"
)

// Deps carries the shared middleware every /v1 route group is built from.
// Nil middleware fields are skipped.
type Deps struct {
	JWTSecret   string
	Users       middleware.UserLookup
	Log         *zap.Logger
	RateLimit   echo.MiddlewareFunc
	Idempotency echo.MiddlewareFunc
	Cache       *middleware.ResponseCache
}

func (d Deps) chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// authenticated returns the middleware every protected route runs: token
// check, rate limit, actor resolution, then idempotency.
func (d Deps) authenticated() []echo.MiddlewareFunc {
	return d.chain(
		middleware.JWTAuth(d.JWTSecret),
		d.RateLimit,
		middleware.ResolveActor(d.Users, d.Log),
		d.Idempotency,
	)
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, ready map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(ready))
}

// RegisterAuth registers the session endpoints. Register, login and
// refresh are open; logout and /v1/me require a valid access token.
func RegisterAuth(e *echo.Echo, d Deps, a *handler.AuthHandler) {
	g := e.Group("/v1/auth", d.chain(d.RateLimit)...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// The group already rate-limits.
	g.POST("/logout", a.Logout, d.chain(
		middleware.JWTAuth(d.JWTSecret),
		middleware.ResolveActor(d.Users, d.Log),
	)...)

	e.GET("/v1/me", a.Me, d.authenticated()...)
}

// RegisterWorkflow registers applications, treatment plans, problem
// reports, reviews and user administration. Role gates here are coarse;
// the engine re-checks capability and ownership on every call.
func RegisterWorkflow(e *echo.Echo, d Deps, h *handler.WorkflowHandler) {
	therapist := middleware.RequireRole(model.RoleTherapist)

	g := e.Group("/v1", d.authenticated()...)

	g.POST("/therapist/applications", h.SubmitApplication)
	g.GET("/therapist/applications/me", h.MyApplication)

	g.POST("/treatment-plans", h.CreateTreatmentPlan, therapist)
	g.GET("/treatment-plans", h.ListTreatmentPlans)
	g.GET("/treatment-plans/:id", h.GetTreatmentPlan)
	g.PUT("/treatment-plans/:id/status", h.SetTreatmentPlanStatus, therapist)

	g.POST("/problems", h.CreateProblemReport)
	g.GET("/problems", h.ListProblemReports, therapist)
	g.GET("/problems/mine", h.MyProblemReports)
	g.GET("/problems/:id", h.GetProblemReport)
	g.PUT("/problems/:id/status", h.SetProblemReportStatus, therapist)

	g.POST("/reviews", h.CreateReview, therapist)
	g.GET("/reviews", h.ListReviews)
	g.GET("/reviews/:id", h.GetReview)

	g.GET("/users/:id", h.GetUser)

	admin := g.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.GET("/applications", h.ListApplications)
	admin.GET("/applications/:id", h.GetApplication)
	admin.PUT("/applications/:id/status", h.SetApplicationStatus)
	admin.GET("/users", h.ListUsers)
	admin.PUT("/users/:id/role", h.PromoteUser)
	admin.PUT("/users/:id/active", h.SetUserActive)
}

// RegisterKnowledge registers the disorder/symptom graph. The two list
// endpoints are served through the response cache, which the knowledge
// service invalidates on every mutation.
func RegisterKnowledge(e *echo.Echo, d Deps, h *handler.KnowledgeHandler) {
	therapist := middleware.RequireRole(model.RoleTherapist)
	cached := d.chain()
	if d.Cache != nil {
		cached = append(cached, d.Cache.Middleware())
	}

	g := e.Group("/v1", d.authenticated()...)

	g.GET("/disorders", h.ListDisorders, cached...)
	g.GET("/symptoms", h.ListSymptoms, cached...)
	g.POST("/diagnose", h.Diagnose)

	g.POST("/disorders", h.AddDisorder, therapist)
	g.POST("/symptoms", h.AddSymptom, therapist)
	g.POST("/disorders/:name/symptoms", h.LinkSymptom, therapist)
	g.DELETE("/disorders/:name/symptoms/:symptom", h.UnlinkSymptom, therapist)
	g.DELETE("/disorders/:name", h.DeleteDisorder, therapist)
	g.DELETE("/symptoms/:name", h.DeleteSymptom, therapist)
}
