package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/httputil"
)

// ListPersons handles GET /api/persons?name=&eyeColor=&page=&limit=.
func (h *Handlers) ListPersons(w http.ResponseWriter, r *http.Request) {
	p := readPage(r)
	q := r.URL.Query()
	f := domain.PersonFilter{
		Name:     strings.TrimSpace(q.Get("name")),
		EyeColor: domain.Color(strings.ToUpper(q.Get("eyeColor"))),
		Limit:    p.Limit,
		Offset:   p.Offset,
	}
	if f.EyeColor != "" && !f.EyeColor.Valid() {
		httputil.BadRequest(w, "unknown eyeColor")
		return
	}
	persons, total, err := h.persons.List(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, newPage(persons, p, total))
}

func (h *Handlers) GetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.persons.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, p)
}

func (h *Handlers) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var in domain.PersonInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.persons.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, p)
}

func (h *Handlers) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in domain.PersonInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.persons.Update(r.Context(), id, in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, p)
}

func (h *Handlers) DeletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.persons.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// NameTaken handles GET /api/persons/name-taken?name=&ignoreId=. The answer
// is advisory; creates and updates re-check under the name lock.
func (h *Handlers) NameTaken(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	var ignore *int64
	if raw := r.URL.Query().Get("ignoreId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid ignoreId")
			return
		}
		ignore = &id
	}
	taken, err := h.persons.IsNameTaken(r.Context(), name, ignore)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"taken": taken})
}

func (h *Handlers) DeletePersonsByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseFloat(r.URL.Query().Get("height"), 64)
	if err != nil {
		httputil.BadRequest(w, "height must be a number")
		return
	}
	n, err := h.persons.DeleteByHeight(r.Context(), height)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"deleted": n})
}

func (h *Handlers) PersonWithMaxID(w http.ResponseWriter, r *http.Request) {
	p, err := h.persons.WithMaxID(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, p)
}

func (h *Handlers) UniqueHeights(w http.ResponseWriter, r *http.Request) {
	heights, err := h.persons.UniqueHeights(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, heights)
}

func (h *Handlers) CountByEyeColor(w http.ResponseWriter, r *http.Request) {
	c := domain.Color(strings.ToUpper(r.URL.Query().Get("eyeColor")))
	n, err := h.persons.CountByEyeColor(r.Context(), c)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int64{"count": n})
}

func (h *Handlers) ShareByEyeColor(w http.ResponseWriter, r *http.Request) {
	c := domain.Color(strings.ToUpper(r.URL.Query().Get("eyeColor")))
	pct, err := h.persons.ShareByEyeColor(r.Context(), c)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]float64{"percent": pct})
}
