package api

import (
	"net/http"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/httputil"
)

func (h *Handlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	p := readPage(r)
	locs, total, err := h.locations.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, newPage(locs, p, total))
}

func (h *Handlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	l, err := h.locations.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, l)
}

func (h *Handlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var in domain.LocationInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	l, err := h.locations.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, l)
}

func (h *Handlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in domain.LocationInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	l, err := h.locations.Update(r.Context(), id, in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, l)
}

func (h *Handlers) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.locations.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ListCoordinates(w http.ResponseWriter, r *http.Request) {
	p := readPage(r)
	coords, total, err := h.locations.ListCoordinates(r.Context(), p.Limit, p.Offset)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, newPage(coords, p, total))
}

func (h *Handlers) GetCoordinates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.locations.GetCoordinates(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) CreateCoordinates(w http.ResponseWriter, r *http.Request) {
	var in domain.CoordinatesInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.locations.CreateCoordinates(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) DeleteCoordinates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.locations.DeleteCoordinates(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}
