package router

import (
	"database/sql"
	"net/http"

	"casedesk/internal/ai"
	"casedesk/internal/alert"
	"casedesk/internal/audit"
	"casedesk/internal/cases"
	caserepo "casedesk/internal/cases/repository"
	caseservice "casedesk/internal/cases/service"
	"casedesk/internal/chat"
	"casedesk/internal/cron"
	"casedesk/internal/document"
	docrepo "casedesk/internal/document/repository"
	docservice "casedesk/internal/document/service"
	"casedesk/internal/form"
	"casedesk/internal/invite"
	"casedesk/internal/notify"
	"casedesk/internal/profile"
	"casedesk/internal/quota"
	"casedesk/internal/task"
	"casedesk/middleware"
	"casedesk/socket"
)

func Setup(db *sql.DB, hub *socket.Hub, chatRepo *chat.Repository) http.Handler {
	mux := http.NewServeMux()

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		socket.ServeWs(hub, w, r, userID)
	})
	mux.Handle("/ws", middleware.AuthMiddleware(wsHandler))

	// Shared infrastructure
	auditor := audit.NewRecorder(db)
	quotaService := quota.NewService(db)
	mailer := notify.NewMailer()
	llm := ai.NewLLMClient()

	// REST API
	caseRepo := caserepo.NewCaseRepository(db)
	caseSvc := caseservice.NewCaseService(caseRepo, auditor)
	caseHandler := cases.NewCaseHandler(caseSvc)

	documentRepo := docrepo.NewDocumentRepository(db)
	documentSvc := docservice.NewDocumentService(documentRepo, caseRepo, quotaService, auditor)
	documentHandler := document.NewDocumentHandler(documentSvc)

	formRepo := form.NewRepository(db)
	formSvc := form.NewService(formRepo, caseRepo, form.NewPDFClient(), quotaService, auditor)
	formHandler := form.NewHandler(formSvc)

	taskHandler := task.NewHandler(task.NewRepository(db), caseRepo)

	chatService := chat.NewService(chatRepo, caseRepo, llm, quotaService, auditor)
	chatService.Hub = hub
	chatHandler := chat.NewHandler(chatService)

	alertRepo := alert.NewRepository(db)
	alertSvc := alert.NewService(alertRepo, caseRepo, documentRepo, alert.NewTimezoneCache(db))
	alertHandler := alert.NewHandler(alertRepo)

	riskSvc := ai.NewRiskService(caseRepo, documentSvc, llm, quotaService)
	searchSvc := ai.NewSearchService(db, llm, quotaService)
	aiHandler := ai.NewHandler(riskSvc, searchSvc)

	inviteSvc := invite.NewService(db, mailer, auditor)
	inviteHandler := invite.NewHandler(inviteSvc)

	quotaHandler := &quota.Handler{Service: quotaService}
	auditHandler := audit.NewHandler(auditor)
	profileHandler := profile.NewHandler(db)

	limiter := middleware.NewRateLimiter(10, 30)
	auth := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(limiter.Middleware(h))
	}

	mux.Handle("/api/cases/create", auth(caseHandler.CreateCase))
	mux.Handle("/api/cases/get", auth(caseHandler.GetCase))
	mux.Handle("/api/cases/update", auth(caseHandler.UpdateCase))
	mux.Handle("/api/cases/delete", auth(caseHandler.DeleteCase))
	mux.Handle("/api/cases", auth(caseHandler.GetCases))
	mux.Handle("/api/cases/risk", auth(aiHandler.AssessRisk))

	mux.Handle("/api/documents/create", auth(documentHandler.CreateDocument))
	mux.Handle("/api/documents/status", auth(documentHandler.UpdateStatus))
	mux.Handle("/api/documents/delete", auth(documentHandler.DeleteDocument))
	mux.Handle("/api/documents/completeness", auth(documentHandler.Completeness))
	mux.Handle("/api/documents", auth(documentHandler.GetDocuments))

	mux.Handle("/api/forms/create", auth(formHandler.CreateForm))
	mux.Handle("/api/forms/generate", auth(formHandler.Generate))
	mux.Handle("/api/forms", auth(formHandler.GetForms))

	mux.Handle("/api/tasks/create", auth(taskHandler.CreateTask))
	mux.Handle("/api/tasks/update", auth(taskHandler.UpdateTask))
	mux.Handle("/api/tasks/delete", auth(taskHandler.DeleteTask))
	mux.Handle("/api/tasks", auth(taskHandler.GetTasks))

	mux.Handle("/api/conversations/create", auth(chatHandler.CreateConversation))
	mux.Handle("/api/conversations/messages/send", auth(chatHandler.SendMessage))
	mux.Handle("/api/conversations/messages", auth(chatHandler.GetMessages))
	mux.Handle("/api/conversations/assistant/stream", auth(chatHandler.StreamAssistant))
	mux.Handle("/api/conversations", auth(chatHandler.GetConversations))

	mux.Handle("/api/alerts/acknowledge", auth(alertHandler.Acknowledge))
	mux.Handle("/api/alerts", auth(alertHandler.GetAlerts))

	mux.Handle("/api/search", auth(aiHandler.SearchCases))

	mux.Handle("/api/invitations/create", auth(inviteHandler.CreateInvite))
	mux.Handle("/api/invitations/accept", auth(inviteHandler.AcceptInvite))

	mux.Handle("/api/me", auth(profileHandler.Me))
	mux.Handle("/api/quota", auth(quotaHandler.GetUsage))
	mux.Handle("/api/gdpr/export", auth(auditHandler.ExportUserData))

	// Cron endpoints are gated by the shared secret, not user auth.
	cronHandler := cron.NewHandler(db, formRepo, alertSvc, alertRepo, inviteSvc, auditor)
	mux.Handle("/api/cron/cleanup", middleware.CronAuthMiddleware(http.HandlerFunc(cronHandler.Cleanup)))
	mux.Handle("/api/cron/deadline-sync", middleware.CronAuthMiddleware(http.HandlerFunc(cronHandler.DeadlineSync)))
	mux.Handle("/api/cron/audit-archive", middleware.CronAuthMiddleware(http.HandlerFunc(cronHandler.AuditArchive)))

	return middleware.CORSMiddleware(mux)
}
