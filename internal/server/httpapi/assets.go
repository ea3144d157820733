package httpapi

import "net/http"

type createAssetResponse struct {
	AssetID   string `json:"assetId"`
	UploadURL string `json:"uploadUrl"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	asset, url, err := s.assets.CreateUploadURL(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAssetResponse{AssetID: asset.AssetID, UploadURL: url})
}

func (s *Server) handleCompleteAsset(w http.ResponseWriter, r *http.Request) {
	err := s.assets.ConfirmUpload(r.Context(), UserID(r.Context()), r.PathValue("id"), r.PathValue("assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	url, err := s.assets.GetDownloadURL(r.Context(), UserID(r.Context()), r.PathValue("id"), r.PathValue("assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"downloadUrl": url})
}
