package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/httputil"
	"github.com/ignite/person-registry/internal/pkg/logger"
	"github.com/ignite/person-registry/internal/service/importer"
)

// HeaderImportJobID carries the job id on failed import responses.
const HeaderImportJobID = "X-Import-Job-Id"

// ImportPersons handles POST /api/persons/import (multipart field "file").
func (h *Handlers) ImportPersons(w http.ResponseWriter, r *http.Request) {
	h.runImport(w, r, h.imports.ImportPersons)
}

// ImportLocations handles POST /api/locations/import.
func (h *Handlers) ImportLocations(w http.ResponseWriter, r *http.Request) {
	h.runImport(w, r, h.imports.ImportLocations)
}

func (h *Handlers) runImport(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, up importer.Upload) (*domain.ImportJob, error)) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	job, err := run(r.Context(), up)
	if err != nil {
		if job != nil {
			w.Header().Set(HeaderImportJobID, strconv.FormatInt(job.ID, 10))
		}
		respondError(w, err)
		return
	}
	httputil.Created(w, job)
}

// readUpload reads the multipart "file" field, bounded by the upload limit.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (importer.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		httputil.BadRequest(w, "failed to parse form: "+err.Error())
		return importer.Upload{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "no file provided: "+err.Error())
		return importer.Upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		httputil.BadRequest(w, "failed to read file: "+err.Error())
		return importer.Upload{}, false
	}
	if int64(len(data)) > h.maxUpload {
		httputil.BadRequest(w, fmt.Sprintf("file exceeds %d bytes", h.maxUpload))
		return importer.Upload{}, false
	}
	return importer.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

// PersonImportHistory handles GET /api/persons/imports?scope=all.
func (h *Handlers) PersonImportHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, domain.ImportPerson)
}

// LocationImportHistory handles GET /api/locations/imports?scope=all.
func (h *Handlers) LocationImportHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, domain.ImportLocation)
}

func (h *Handlers) history(w http.ResponseWriter, r *http.Request, typ domain.ImportJobType) {
	jobs, err := h.imports.History(r.Context(), typ, r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, jobs)
}

// DownloadImportFile handles GET /api/imports/{id}/file.
func (h *Handlers) DownloadImportFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	file, err := h.imports.DownloadFile(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	defer file.Body.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file.Body); err != nil {
		logger.Warn("api: import file download interrupted", "job_id", id, "error", err)
	}
}
