// Package task manages per-case work items shown on the dashboards.
package task

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	caserepo "casedesk/internal/cases/repository"
	caseservice "casedesk/internal/cases/service"
	"casedesk/middleware"
	"casedesk/pkg/logger"

	"github.com/google/uuid"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

var (
	ErrNotFound  = errors.New("task not found")
	ErrForbidden = errors.New("forbidden")
)

type Task struct {
	ID         string     `json:"id"`
	CaseID     string     `json:"case_id"`
	AssigneeID string     `json:"assignee_id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CreateTaskRequest struct {
	CaseID     string     `json:"case_id"`
	AssigneeID string     `json:"assignee_id"`
	Title      string     `json:"title"`
	Priority   string     `json:"priority"`
	DueDate    *time.Time `json:"due_date"`
}

type UpdateTaskRequest struct {
	TaskID   string     `json:"task_id"`
	Title    string     `json:"title"`
	Status   string     `json:"status"`
	Priority string     `json:"priority"`
	DueDate  *time.Time `json:"due_date"`
}

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

const taskColumns = "id, case_id, assignee_id, title, status, priority, due_date, created_at, updated_at"

func scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.CaseID, &t.AssigneeID, &t.Title, &t.Status, &t.Priority,
		&t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) Create(t *Task) error {
	_, err := r.DB.Exec(`INSERT INTO tasks (id, case_id, assignee_id, title, status, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		t.ID, t.CaseID, t.AssigneeID, t.Title, t.Status, t.Priority, t.DueDate)
	if err != nil {
		logger.Sugar.Errorf("Failed to create task: %v", err)
	}
	return err
}

func (r *Repository) GetByID(taskID string) (*Task, error) {
	row := r.DB.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = $1", taskID)
	t, err := scanTask(row)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get task %s: %v", taskID, err)
	}
	return t, err
}

func (r *Repository) ListByCase(caseID string) ([]Task, error) {
	rows, err := r.DB.Query("SELECT "+taskColumns+" FROM tasks WHERE case_id = $1 ORDER BY due_date ASC NULLS LAST, created_at DESC", caseID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list tasks for case %s: %v", caseID, err)
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			continue
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (r *Repository) Update(req UpdateTaskRequest) (int64, error) {
	result, err := r.DB.Exec(`UPDATE tasks SET title = $1, status = $2, priority = $3, due_date = $4, updated_at = NOW() WHERE id = $5`,
		req.Title, req.Status, req.Priority, req.DueDate, req.TaskID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update task %s: %v", req.TaskID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository) Delete(taskID string) error {
	_, err := r.DB.Exec("DELETE FROM tasks WHERE id = $1", taskID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete task %s: %v", taskID, err)
	}
	return err
}

type Handler struct {
	Repo     *Repository
	CaseRepo *caserepo.CaseRepository
}

func NewHandler(repo *Repository, caseRepo *caserepo.CaseRepository) *Handler {
	return &Handler{Repo: repo, CaseRepo: caseRepo}
}

func (h *Handler) caseAccess(r *http.Request, caseID string) error {
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	role, _ := r.Context().Value(middleware.RoleKey).(string)
	firmID, _ := r.Context().Value(middleware.FirmIDKey).(string)

	c, err := h.CaseRepo.GetByID(caseID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if !caseservice.CanRead(c, userID, role, firmID) {
		return ErrForbidden
	}
	return nil
}

func writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" || req.Title == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.caseAccess(r, req.CaseID); err != nil {
		writeAccessError(w, err)
		return
	}

	assignee := req.AssigneeID
	if assignee == "" {
		assignee, _ = r.Context().Value(middleware.UserIDKey).(string)
	}
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}

	t := &Task{
		ID:         uuid.NewString(),
		CaseID:     req.CaseID,
		AssigneeID: assignee,
		Title:      req.Title,
		Status:     StatusOpen,
		Priority:   priority,
		DueDate:    req.DueDate,
	}
	if err := h.Repo.Create(t); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

func (h *Handler) GetTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		http.Error(w, "Missing caseId parameter", http.StatusBadRequest)
		return
	}

	if err := h.caseAccess(r, caseID); err != nil {
		writeAccessError(w, err)
		return
	}

	tasks, err := h.Repo.ListByCase(caseID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.Repo.GetByID(req.TaskID)
	if err == sql.ErrNoRows {
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if err := h.caseAccess(r, t.CaseID); err != nil {
		writeAccessError(w, err)
		return
	}

	// Fill unchanged fields from the stored row.
	if req.Title == "" {
		req.Title = t.Title
	}
	if req.Status == "" {
		req.Status = t.Status
	}
	if req.Priority == "" {
		req.Priority = t.Priority
	}
	if req.DueDate == nil {
		req.DueDate = t.DueDate
	}

	if _, err := h.Repo.Update(req); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Task updated"))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		http.Error(w, "Missing taskId parameter", http.StatusBadRequest)
		return
	}

	t, err := h.Repo.GetByID(taskID)
	if err == sql.ErrNoRows {
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if err := h.caseAccess(r, t.CaseID); err != nil {
		writeAccessError(w, err)
		return
	}

	if err := h.Repo.Delete(taskID); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Task deleted"))
}
