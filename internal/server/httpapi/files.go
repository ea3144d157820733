package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/scene"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	"github.com/dmitrijs2005/scenekeeper/internal/server/services"
)

type fileDTO struct {
	ID           string         `json:"id"`
	OwnerUserID  string         `json:"ownerUserId"`
	TeamID       *string        `json:"teamId,omitempty"`
	Title        string         `json:"title"`
	Version      int64          `json:"version"`
	IsFavorite   bool           `json:"isFavorite"`
	IsTrashed    bool           `json:"isTrashed"`
	LastOpenedAt *time.Time     `json:"lastOpenedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Scene        *scene.Payload `json:"scene,omitempty"`
}

func toFileDTO(f *models.File) fileDTO {
	return fileDTO{
		ID:           f.ID,
		OwnerUserID:  f.OwnerUserID,
		TeamID:       f.TeamID,
		Title:        f.Title,
		Version:      f.Version,
		IsFavorite:   f.IsFavorite,
		IsTrashed:    f.IsTrashed,
		LastOpenedAt: f.LastOpenedAt,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
		Scene:        f.Scene,
	}
}

type fileResponse struct {
	File fileDTO `json:"file"`
}

type createFileRequest struct {
	Title  string         `json:"title"`
	TeamID *string        `json:"teamId"`
	Scene  *scene.Payload `json:"scene"`
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	f, err := s.files.Create(r.Context(), UserID(r.Context()), services.CreateFileInput{
		Title:  req.Title,
		TeamID: req.TeamID,
		Scene:  req.Scene,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fileResponse{File: toFileDTO(f)})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var teamID *string
	if q.Get("scope") == "team" {
		id := q.Get("teamId")
		if id == "" {
			writeError(w, fmt.Errorf("%w: scope=team requires teamId", common.ErrInvalidInput))
			return
		}
		teamID = &id
	}

	list, err := s.files.List(r.Context(), UserID(r.Context()), services.ListFilesInput{
		TeamID:         teamID,
		IncludeTrashed: q.Get("includeTrashed") == "true",
		FavoritesOnly:  q.Get("favoritesOnly") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]fileDTO, 0, len(list))
	for _, f := range list {
		out = append(out, toFileDTO(f))
	}
	writeJSON(w, http.StatusOK, map[string][]fileDTO{"files": out})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.files.Get(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: toFileDTO(f)})
}

type saveFileRequest struct {
	Version int64         `json:"version"`
	Title   string        `json:"title"`
	Scene   scene.Payload `json:"scene"`
}

func (s *Server) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	var req saveFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	f, err := s.files.Save(r.Context(), UserID(r.Context()), services.SaveFileInput{
		FileID:  r.PathValue("id"),
		Version: req.Version,
		Title:   req.Title,
		Scene:   req.Scene,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: toFileDTO(f)})
}

func (s *Server) handleTrashFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Trash(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestoreFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.files.Restore(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: toFileDTO(f)})
}

func (s *Server) handleDeleteFilePermanent(w http.ResponseWriter, r *http.Request) {
	if err := s.files.PermanentlyDelete(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type favoriteRequest struct {
	IsFavorite bool `json:"isFavorite"`
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	f, err := s.files.SetFavorite(r.Context(), UserID(r.Context()), r.PathValue("id"), req.IsFavorite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: toFileDTO(f)})
}
