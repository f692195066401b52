package handlers

import (
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"posemind/internal/storage"
	posezip "posemind/pkg/zip"
)

func (a *App) ServeUpload(w http.ResponseWriter, r *http.Request) {
	a.serveFile(w, r, a.Uploads)
}

func (a *App) ServeResult(w http.ResponseWriter, r *http.Request) {
	a.serveFile(w, r, a.Results)
}

func (a *App) serveFile(w http.ResponseWriter, r *http.Request, store *storage.FileStore) {
	name := chi.URLParam(r, "filename")
	f, info, err := store.Open(name)
	if err != nil {
		a.error(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	defer f.Close()
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

const maxArchiveFiles = 8

// ResultArchive bundles the requested results (?files=a.jpg,b.jpg) into a
// zip download. Missing names are skipped; 404 when none exist.
func (a *App) ResultArchive(w http.ResponseWriter, r *http.Request) {
	var entries []posezip.Entry
	seen := map[string]struct{}{}
	for _, name := range strings.Split(r.URL.Query().Get("files"), ",") {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup || !a.Results.Exists(name) {
			continue
		}
		seen[name] = struct{}{}
		key := name
		entries = append(entries, posezip.Entry{
			Name:     path.Base(key),
			Modified: time.Now(),
			Open: func() (io.ReadCloser, error) {
				f, _, err := a.Results.Open(key)
				return f, err
			},
		})
		if len(entries) == maxArchiveFiles {
			break
		}
	}
	if len(entries) == 0 {
		a.error(w, r, http.StatusNotFound, msgNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="posemind_poses.zip"`)
	n, err := posezip.Write(w, entries)
	if err != nil {
		a.log(r).Warn().Err(err).Int("files", n).Msg("result archive interrupted")
	}
}
