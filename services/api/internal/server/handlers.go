package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"studyhub/pkg/domain"
	"studyhub/pkg/limits"
)

const maxJSONBody = 1 << 20

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type idpLoginRequest struct {
	ProviderID string `json:"providerId"`
	IDToken    string `json:"idToken"`
	RequestURI string `json:"requestUri"`
}

type authResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	ExpiresIn    int64       `json:"expiresIn,omitempty"`
	User         domain.User `json:"user"`
}

type subjectRequest struct {
	Name string `json:"name"`
}

type flashcardSetRequest struct {
	Title string             `json:"title"`
	Cards []domain.Flashcard `json:"cards"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationFailed, "invalid JSON body")
		return false
	}
	return true
}

func listResponse[T any](items []T) map[string]any {
	return map[string]any{"items": items, "count": len(items)}
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.audit(r, "api.signup", "fail", "err", err.Error())
		s.fail(w, r, err)
		return
	}
	s.audit(r, "api.signup", "success", "user_id", res.User.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		Token:        res.Session.IDToken,
		RefreshToken: res.Session.RefreshToken,
		ExpiresIn:    int64(res.Session.ExpiresIn.Seconds()),
		User:         res.User,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "api.login", "fail", "err", err.Error())
		s.fail(w, r, err)
		return
	}
	s.audit(r, "api.login", "success", "user_id", res.User.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Token:        res.Session.IDToken,
		RefreshToken: res.Session.RefreshToken,
		ExpiresIn:    int64(res.Session.ExpiresIn.Seconds()),
		User:         res.User,
	})
}

func (s *Server) handleIdPLogin(w http.ResponseWriter, r *http.Request) {
	var req idpLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.LoginWithIdP(r.Context(), req.ProviderID, req.IDToken, req.RequestURI)
	if err != nil {
		s.audit(r, "api.login_idp", "fail", "err", err.Error())
		s.fail(w, r, err)
		return
	}
	s.audit(r, "api.login_idp", "success", "user_id", res.User.ID, "provider", res.User.AuthProvider)
	writeJSON(w, http.StatusOK, authResponse{
		Token:        res.Session.IDToken,
		RefreshToken: res.Session.RefreshToken,
		ExpiresIn:    int64(res.Session.ExpiresIn.Seconds()),
		User:         res.User,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

// subjects
func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	items, err := s.app.ListSubjects(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(items))
}

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	subject, err := s.app.CreateSubject(r.Context(), user, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, subject)
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request, user domain.User) {
	subject, err := s.app.GetSubject(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (s *Server) handleRenameSubject(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	subject, err := s.app.RenameSubject(r.Context(), user, r.PathValue("id"), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteSubject(r.Context(), user, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// notes
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request, user domain.User) {
	items, err := s.app.ListNotes(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(items))
}

func (s *Server) handleUploadNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartSlack)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, r, &limits.ValidationError{Field: "file", Reason: "size out of range", Limit: s.maxUploadBytes})
			return
		}
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error: "file is required (field: file)",
			Code:  codeValidationFailed,
			Field: "file",
		})
		return
	}
	defer file.Close()

	note, err := s.app.UploadNote(r.Context(), user, r.PathValue("id"), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteNote(r.Context(), user, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDownloadNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	link, err := s.app.NoteDownloadURL(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// flashcard sets
func (s *Server) handleListFlashcardSets(w http.ResponseWriter, r *http.Request, user domain.User) {
	items, err := s.app.ListFlashcardSets(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(items))
}

func (s *Server) handleCreateFlashcardSet(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req flashcardSetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	set, err := s.app.CreateFlashcardSet(r.Context(), user, r.PathValue("id"), req.Title, req.Cards)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *Server) handleDeleteFlashcardSet(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteFlashcardSet(r.Context(), user, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// public metadata
func (s *Server) handleLimits(w http.ResponseWriter, _ *http.Request) {
	l := s.app.Limits()
	writeJSON(w, http.StatusOK, map[string]any{
		"maxSubjectsPerUser":         l.MaxSubjectsPerUser,
		"maxNotesPerSubject":         l.MaxNotesPerSubject,
		"maxFlashcardSetsPerSubject": l.MaxFlashcardSetsPerSubject,
		"maxFlashcardsPerSet":        l.MaxFlashcardsPerSet,
		"maxFileSizeBytes":           l.MaxFileSizeBytes,
		"allowedFileExtensions":      l.AllowedFileExtensions,
		"maxSubjectNameLength":       l.MaxSubjectNameLength,
		"maxSetTitleLength":          l.MaxSetTitleLength,
		"maxFlashcardQuestionLength": l.MaxFlashcardQuestionLength,
		"maxFlashcardAnswerLength":   l.MaxFlashcardAnswerLength,
		"maxChatMessageLength":       l.MaxChatMessageLength,
	})
}

func (s *Server) handleVersionUpdates(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListVersionUpdates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(items))
}
