package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"posemind/internal/imgutil"
	"posemind/internal/storage"
)

var allowedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
}

const defaultMaxUpload = 16 << 20

type uploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// Upload stores the multipart field "image" as <unix>_<sanitized name>.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultMaxUpload)
	if a.Config != nil && a.Config.MaxContentLength > 0 {
		limit = a.Config.MaxContentLength
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return
		}
		a.error(w, r, http.StatusBadRequest, msgNoImage)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, r, http.StatusBadRequest, msgNoImage)
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		a.error(w, r, http.StatusBadRequest, msgNoFile)
		return
	}
	if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))]; !ok {
		a.error(w, r, http.StatusBadRequest, msgUnsupportedFormat)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.log(r).Error().Err(err).Msg("read upload")
		a.error(w, r, http.StatusInternalServerError, msgUploadFailed)
		return
	}
	if _, _, err := imgutil.Decode(data); err != nil {
		a.error(w, r, http.StatusBadRequest, msgInvalidImage)
		return
	}

	name := fmt.Sprintf("%d_%s", time.Now().Unix(), storage.SanitizeFilename(header.Filename))
	key, err := a.Uploads.Write(r.Context(), name, data)
	if err != nil {
		a.log(r).Error().Err(err).Str("file", name).Msg("store upload")
		a.error(w, r, http.StatusInternalServerError, msgUploadFailed)
		return
	}
	a.log(r).Info().Str("file", key).Int("bytes", len(data)).Msg("image uploaded")
	a.json(w, http.StatusOK, uploadResponse{Status: "success", Filename: key})
}
