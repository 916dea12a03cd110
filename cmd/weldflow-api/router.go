package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"weldflow-api/internal/auth"
	"weldflow-api/internal/config"
	"weldflow-api/internal/http/docs"
	"weldflow-api/internal/http/handler"
	"weldflow-api/internal/http/middleware"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterDeps contém as dependências necessárias para construir o router.
type RouterDeps struct {
	Cfg              *config.Config
	Log              *logger.Logger
	Resolver         auth.TokenResolver
	Workspaces       middleware.WorkspaceResolver
	IdempotencyStore middleware.IdempotencyStore
	RateLimiter      middleware.RateLimiter
	Metrics          *telemetry.Metrics
	Gatherer         prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Readiness        []ReadinessCheck

	// Handlers
	WorkspaceHandler  *handler.WorkspaceHandler
	RecordHandler     *handler.RecordHandler
	ApprovalHandler   *handler.ApprovalHandler
	WorkflowHandler   *handler.WorkflowHandler
	EnterpriseHandler *handler.EnterpriseHandler
	DebugHandler      *handler.DebugHandler
}

// buildRouter constrói o chi.Router com todos os middlewares e rotas.
func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestIDMiddleware)
	if deps.Log != nil {
		r.Use(middleware.RequestLoggingMiddleware(deps.Log))
		r.Use(middleware.RecoveryMiddleware(deps.Log))
	}
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Get("/ready", readyHandler(deps))
	r.Get("/metrics", metricsHandler(deps))
	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	// Debug routes (dev-only)
	if deps.Cfg.IsDev() && deps.DebugHandler != nil {
		r.Route("/debug", func(r chi.Router) {
			r.With(auth.JWTAuthMiddleware(deps.Resolver)).Get("/auth", deps.DebugHandler.GetAuthDebug)
			r.With(
				auth.JWTAuthMiddleware(deps.Resolver),
				middleware.WorkspaceMiddleware(deps.Workspaces),
			).Get("/auth/workspace", deps.DebugHandler.GetAuthDebug)
			r.Get("/db/ping", deps.DebugHandler.PingDB)
		})
	}

	idempotent := middleware.IdempotencyMiddleware(deps.IdempotencyStore)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.JWTAuthMiddleware(deps.Resolver))

		// Workspace switcher needs only the token
		if deps.WorkspaceHandler != nil {
			r.Get("/workspaces", deps.WorkspaceHandler.ListWorkspaces)
		}

		// Everything else runs inside one resolved workspace
		r.Group(func(r chi.Router) {
			r.Use(middleware.WorkspaceMiddleware(deps.Workspaces))
			r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerWorkspacePerMin))

			if deps.WorkspaceHandler != nil {
				r.Get("/workspaces/current", deps.WorkspaceHandler.CurrentWorkspace)
				r.Get("/quota", deps.WorkspaceHandler.GetQuota)
			}

			// Records
			if deps.RecordHandler != nil {
				r.Route("/records/{kind}", func(r chi.Router) {
					r.Get("/", deps.RecordHandler.ListRecords)
					r.With(idempotent).Post("/", deps.RecordHandler.CreateRecord)
					r.Route("/{recordId}", func(r chi.Router) {
						r.Get("/", deps.RecordHandler.GetRecord)
						r.With(idempotent).Patch("/", deps.RecordHandler.UpdateRecord)
						r.Delete("/", deps.RecordHandler.DeleteRecord)
						r.With(idempotent).Post("/approval", deps.RecordHandler.SubmitForApproval)
					})
				})
			}

			// Approvals
			if deps.ApprovalHandler != nil {
				r.Route("/approvals", func(r chi.Router) {
					r.Get("/", deps.ApprovalHandler.ListApprovals)
					r.Route("/{instanceId}", func(r chi.Router) {
						r.Get("/", deps.ApprovalHandler.GetApproval)
						r.Get("/history", deps.ApprovalHandler.GetHistory)
						r.With(idempotent).Post("/approve", deps.ApprovalHandler.Approve)
						r.With(idempotent).Post("/reject", deps.ApprovalHandler.Reject)
						r.With(idempotent).Post("/return", deps.ApprovalHandler.Return)
						r.With(idempotent).Post("/resubmit", deps.ApprovalHandler.Resubmit)
						r.With(idempotent).Post("/cancel", deps.ApprovalHandler.Cancel)
						r.With(idempotent).Post("/comment", deps.ApprovalHandler.Comment)
					})
				})
			}

			// Approval workflows
			if deps.WorkflowHandler != nil {
				r.Route("/approval-workflows", func(r chi.Router) {
					r.Get("/", deps.WorkflowHandler.ListWorkflows)
					r.With(idempotent).Post("/", deps.WorkflowHandler.CreateWorkflow)
					r.Route("/{workflowId}", func(r chi.Router) {
						r.Get("/", deps.WorkflowHandler.GetWorkflow)
						r.With(idempotent).Put("/", deps.WorkflowHandler.UpdateWorkflow)
						r.Delete("/", deps.WorkflowHandler.DeleteWorkflow)
					})
				})
			}

			// Enterprise organisation
			if deps.EnterpriseHandler != nil {
				r.Route("/enterprise", func(r chi.Router) {
					r.Get("/company", deps.EnterpriseHandler.GetCompany)
					r.With(idempotent).Patch("/settings", deps.EnterpriseHandler.UpdateSettings)

					r.Route("/factories", func(r chi.Router) {
						r.Get("/", deps.EnterpriseHandler.ListFactories)
						r.With(idempotent).Post("/", deps.EnterpriseHandler.CreateFactory)
					})

					r.Route("/employees", func(r chi.Router) {
						r.Get("/", deps.EnterpriseHandler.ListEmployees)
						r.With(idempotent).Post("/", deps.EnterpriseHandler.AddEmployee)
						r.Route("/{employeeId}", func(r chi.Router) {
							r.With(idempotent).Patch("/", deps.EnterpriseHandler.UpdateEmployee)
							r.Delete("/", deps.EnterpriseHandler.RemoveEmployee)
						})
					})

					r.Route("/roles", func(r chi.Router) {
						r.Get("/", deps.EnterpriseHandler.ListRoles)
						r.With(idempotent).Post("/", deps.EnterpriseHandler.CreateRole)
						r.Route("/{roleId}", func(r chi.Router) {
							r.Get("/", deps.EnterpriseHandler.GetRole)
							r.With(idempotent).Patch("/", deps.EnterpriseHandler.UpdateRole)
							r.Delete("/", deps.EnterpriseHandler.DeleteRole)
						})
					})
				})
			}
		})
	})

	return r
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// readyHandler probes every registered dependency with a short timeout.
func readyHandler(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, check := range deps.Readiness {
			if err := check.Check(ctx); err != nil {
				if deps.Log != nil {
					deps.Log.Error(ctx, "readiness check failed",
						logger.Module("http"),
						logger.Action("ready"),
						zap.String("dependency", check.Name),
						zap.Error(err),
					)
				}
				writeStatus(w, http.StatusServiceUnavailable, `{"status":"error","message":"`+check.Name+` unavailable"}`)
				return
			}
		}

		writeStatus(w, http.StatusOK, `{"status":"ready"}`)
	}
}

// metricsHandler serves the Prometheus registry. When METRICS_TOKEN is set the
// scraper must send it in X-Metrics-Token or as a bearer token.
func metricsHandler(deps RouterDeps) http.HandlerFunc {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	promHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	token := deps.Cfg.MetricsToken

	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			got := r.Header.Get("X-Metrics-Token")
			if got == "" {
				got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeStatus(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
				return
			}
		}
		promHandler.ServeHTTP(w, r)
	}
}
