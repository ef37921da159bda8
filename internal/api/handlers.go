package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/secondbrain-labs/secondbrain/internal/auth"
	"github.com/secondbrain-labs/secondbrain/internal/core"
	"github.com/secondbrain-labs/secondbrain/internal/extract"
	"github.com/secondbrain-labs/secondbrain/internal/store"
)

const maxUploadSize = 32 << 20 // 32 MiB

// BlobUploader archives original uploads. May be nil when object storage is
// not configured.
type BlobUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader, contentType string) (string, error)
}

// UserStore is the slice of the relational store the handlers need for
// signup, login and token validation.
type UserStore interface {
	GetUserByExternalID(externalUserID string) (*store.User, error)
	CreateUser(externalUserID, passwordHash string) (*store.User, error)
}

type APIHandler struct {
	chatService   *core.ChatService
	ingestService *core.IngestService
	users         UserStore
	blobs         BlobUploader
}

func NewAPIHandler(cs *core.ChatService, is *core.IngestService, users UserStore, blobs BlobUploader) *APIHandler {
	return &APIHandler{
		chatService:   cs,
		ingestService: is,
		users:         users,
		blobs:         blobs,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.users.GetUserByExternalID(externalUserID)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", externalUserID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.users.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.UserID, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetUserByExternalID(req.UserID)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.UserID, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`

	// Optional metadata for a lazily created session.
	SourceTitle string  `json:"source_title,omitempty"`
	SourceType  string  `json:"source_type,omitempty"`
	SourceURL   *string `json:"source_url,omitempty"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "Question cannot be empty", http.StatusBadRequest)
		return
	}

	resp, err := h.chatService.Answer(r.Context(), core.AnswerRequest{
		UserID:      userID,
		SessionID:   req.SessionID,
		Question:    req.Question,
		SourceTitle: req.SourceTitle,
		SourceType:  req.SourceType,
		SourceURL:   req.SourceURL,
	})
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Session not found", http.StatusNotFound)
		} else {
			log.Printf("Error answering question for user %d: %v", userID, err)
			http.Error(w, "Failed to answer question", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(ChatResponse{SessionID: resp.Chat.ID, Answer: resp.Answer})
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	chats, err := h.chatService.ListSessions(userID)
	if err != nil {
		log.Printf("Error listing sessions for user %d: %v", userID, err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(chats)
}

type SessionDetailsResponse struct {
	*store.Chat
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	chat, messages, err := h.chatService.GetSession(sessionID, userID)
	if err != nil {
		log.Printf("Error getting session %s for user %d: %v", sessionID, userID, err)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if chat == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(SessionDetailsResponse{Chat: chat, Messages: messages})
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) RenameSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	var req RenameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title cannot be empty", http.StatusBadRequest)
		return
	}

	found, err := h.chatService.RenameSession(sessionID, userID, req.Title)
	if err != nil {
		log.Printf("Error renaming session %s for user %d: %v", sessionID, userID, err)
		http.Error(w, "Failed to rename session", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	found, err := h.chatService.DeleteSession(sessionID, userID)
	if err != nil {
		log.Printf("Error deleting session %s for user %d: %v", sessionID, userID, err)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A 'file' form field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if _, ok := extract.KindForPath(header.Filename); !ok {
		http.Error(w, "Unsupported file type: "+header.Filename, http.StatusBadRequest)
		return
	}

	// Spool to disk so the extractors can work with a real file path.
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		log.Printf("Error creating temp file for upload %s: %v", header.Filename, err)
		http.Error(w, "Failed to process upload", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		log.Printf("Error spooling upload %s: %v", header.Filename, err)
		http.Error(w, "Failed to process upload", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	result, err := h.ingestService.IngestFile(r.Context(), tmp.Name())
	if err != nil {
		if extract.IsExtractionError(err) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		} else {
			log.Printf("Error ingesting upload %s: %v", header.Filename, err)
			http.Error(w, "Failed to ingest file", http.StatusInternalServerError)
		}
		return
	}
	// The temp file name means nothing to the user; report the original.
	result.Title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))

	h.archiveOriginal(r.Context(), tmp.Name(), header.Filename, header.Header.Get("Content-Type"))

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// archiveOriginal pushes the raw upload to object storage. Best-effort: the
// chunks are already indexed, so a failed archive only costs the backup copy.
func (h *APIHandler) archiveOriginal(ctx context.Context, path, filename, contentType string) {
	if h.blobs == nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Error reopening upload %s for archiving: %v", filename, err)
		return
	}
	defer f.Close()

	url, err := h.blobs.Upload(ctx, filename, f, contentType)
	if err != nil {
		log.Printf("Error archiving upload %s: %v", filename, err)
		return
	}
	log.Printf("Archived original upload at %s", url)
}

type IngestLinkRequest struct {
	URL string `json:"url"`
}

func (h *APIHandler) IngestLinkHandler(w http.ResponseWriter, r *http.Request) {
	var req IngestLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	result, err := h.ingestService.IngestLink(r.Context(), req.URL)
	if err != nil {
		if extract.IsExtractionError(err) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		} else {
			log.Printf("Error ingesting link %s: %v", req.URL, err)
			http.Error(w, "Failed to ingest link", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

func (h *APIHandler) WipeKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.ingestService.Wipe(r.Context()); err != nil {
		log.Printf("Error wiping knowledge index: %v", err)
		http.Error(w, "Failed to wipe knowledge index", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
