// Package invite handles attorney-to-client invitations: a tokenized,
// expiring row mailed to the client, redeemed at accept time.
package invite

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"casedesk/internal/audit"
	"casedesk/internal/notify"
	"casedesk/middleware"
	"casedesk/pkg/logger"
	"casedesk/store"

	"github.com/google/uuid"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusExpired  = "expired"

	inviteTTL = 7 * 24 * time.Hour
)

var (
	ErrForbidden  = errors.New("only attorneys can invite clients")
	ErrBadToken   = errors.New("invitation is invalid, used or expired")
	ErrDuplicated = errors.New("a pending invitation already exists for this email")
)

type Invitation struct {
	ID        string    `json:"id"`
	FirmID    string    `json:"firm_id"`
	InviterID string    `json:"inviter_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Token     string    `json:"-"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateInviteRequest struct {
	Email string `json:"email"`
}

type AcceptInviteRequest struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type Service struct {
	DB     *sql.DB
	Mailer *notify.Mailer
	Audit  *audit.Recorder
}

func NewService(db *sql.DB, mailer *notify.Mailer, auditor *audit.Recorder) *Service {
	return &Service{DB: db, Mailer: mailer, Audit: auditor}
}

func (s *Service) CreateInvite(inviterID, role, firmID, email string) (*Invitation, error) {
	if role != store.RoleAttorney {
		return nil, ErrForbidden
	}

	var exists bool
	err := s.DB.QueryRow(`SELECT EXISTS(
		SELECT 1 FROM invitations WHERE firm_id = $1 AND email = $2 AND status = 'pending' AND expires_at > NOW())`,
		firmID, email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicated
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	inv := &Invitation{
		ID:        uuid.NewString(),
		FirmID:    firmID,
		InviterID: inviterID,
		Email:     email,
		Role:      store.RoleClient,
		Token:     token,
		Status:    StatusPending,
		ExpiresAt: time.Now().Add(inviteTTL),
	}

	_, err = s.DB.Exec(`INSERT INTO invitations (id, firm_id, inviter_id, email, role, token, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		inv.ID, inv.FirmID, inv.InviterID, inv.Email, inv.Role, inv.Token, inv.Status, inv.ExpiresAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create invitation: %v", err)
		return nil, err
	}

	appURL := strings.TrimRight(strings.TrimSpace(os.Getenv("APP_URL")), "/")
	s.Mailer.Send(email, "You've been invited to your immigration case portal",
		fmt.Sprintf(`<p>Your attorney invited you to collaborate on your case.</p>
<p><a href="%s/invite/accept?token=%s">Accept invitation</a> (valid for 7 days)</p>`, appURL, token))

	s.Audit.Record(firmID, inviterID, "invite.create", "invitation", inv.ID, map[string]interface{}{"email": email})
	return inv, nil
}

// Accept binds the authenticated user to the invitation's firm. Single
// UPDATE so a token can only be redeemed once.
func (s *Service) Accept(token, userID string) error {
	var firmID, invID string
	err := s.DB.QueryRow(`UPDATE invitations SET status = 'accepted'
		WHERE token = $1 AND status = 'pending' AND expires_at > NOW()
		RETURNING id, firm_id`, token).Scan(&invID, &firmID)
	if err == sql.ErrNoRows {
		return ErrBadToken
	} else if err != nil {
		logger.Sugar.Errorf("Failed to accept invitation: %v", err)
		return err
	}

	_, err = s.DB.Exec(`UPDATE profiles SET firm_id = $1, role = 'client' WHERE id = $2`, firmID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to bind user %s to firm %s: %v", userID, firmID, err)
		return err
	}

	s.Audit.Record(firmID, userID, "invite.accept", "invitation", invID, nil)
	return nil
}

// ExpireStale flips pending invitations past their expiry; run from the
// cleanup cron.
func (s *Service) ExpireStale() (int64, error) {
	result, err := s.DB.Exec(`UPDATE invitations SET status = 'expired' WHERE status = 'pending' AND expires_at < NOW()`)
	if err != nil {
		logger.Sugar.Errorf("Failed to expire stale invitations: %v", err)
		return 0, err
	}
	return result.RowsAffected()
}

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	role, _ := r.Context().Value(middleware.RoleKey).(string)
	firmID, _ := r.Context().Value(middleware.FirmIDKey).(string)

	inv, err := h.Service.CreateInvite(userID, role, firmID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrDuplicated):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Database error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inv)
}

func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AcceptInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	// The accepting user is the authenticated caller.
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)

	if err := h.Service.Accept(req.Token, userID); err != nil {
		if errors.Is(err, ErrBadToken) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Invitation accepted"))
}
