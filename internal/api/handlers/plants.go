// plants.go — обработчики /api/medicinal-plants.
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Queas/HGPH-4.0/internal/api/middleware"
	"github.com/Queas/HGPH-4.0/internal/service"
)

// ListPlants — GET /api/medicinal-plants.
// Фильтры: search, condition, region, name, language, scientificName, family,
// toxicityLevel, dohApproved=true, sort, order=desc, page.
func (h *APIHandler) ListPlants(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filters := service.PlantListFilters{
		Search:         q.Get("search"),
		Condition:      q.Get("condition"),
		Region:         q.Get("region"),
		Name:           q.Get("name"),
		Language:       q.Get("language"),
		ScientificName: q.Get("scientificName"),
		Family:         q.Get("family"),
		ToxicityLevel:  q.Get("toxicityLevel"),
		DOHApproved:    q.Get("dohApproved") == "true",
		Sort:           q.Get("sort"),
		Desc:           strings.EqualFold(q.Get("order"), "desc"),
	}

	result, err := h.plants.List(r.Context(), middleware.PrincipalFromContext(r.Context()), filters, page)
	if err != nil {
		h.writeServiceError(w, err, "список растений")
		return
	}
	writePage(w, result)
}

// SearchPlants — GET /api/medicinal-plants/search.
// Списки conditions, regions и families передаются через запятую.
func (h *APIHandler) SearchPlants(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filters := service.PlantSearchFilters{
		Query:            q.Get("q"),
		Conditions:       splitList(q.Get("conditions")),
		Regions:          splitList(q.Get("regions")),
		Families:         splitList(q.Get("families")),
		MinEvidenceLevel: q.Get("minEvidenceLevel"),
		HasImages:        q.Get("hasImages") == "true",
	}

	result, err := h.plants.Search(r.Context(), middleware.PrincipalFromContext(r.Context()), filters, page)
	if err != nil {
		h.writeServiceError(w, err, "поиск растений")
		return
	}
	writePage(w, result)
}

// GetPlant — GET /api/medicinal-plants/{id}.
func (h *APIHandler) GetPlant(w http.ResponseWriter, r *http.Request) {
	plant, err := h.plants.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение растения")
		return
	}
	writeData(w, http.StatusOK, plant, "")
}

// CreatePlant — POST /api/medicinal-plants.
func (h *APIHandler) CreatePlant(w http.ResponseWriter, r *http.Request) {
	var in service.PlantInput
	if !decodeJSON(w, r, &in) {
		return
	}

	plant, err := h.plants.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, err, "создание растения")
		return
	}
	writeData(w, http.StatusCreated, plant, "Карточка растения создана")
}

// UpdatePlant — PUT /api/medicinal-plants/{id}.
// Статус, история проверки, участники и версия в теле игнорируются.
func (h *APIHandler) UpdatePlant(w http.ResponseWriter, r *http.Request) {
	var in service.PlantUpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	plant, err := h.plants.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err, "изменение растения")
		return
	}
	writeData(w, http.StatusOK, plant, "Карточка растения обновлена")
}

// ReviewPlant — POST /api/medicinal-plants/{id}/review.
func (h *APIHandler) ReviewPlant(w http.ResponseWriter, r *http.Request) {
	var in service.PlantReviewInput
	if !decodeJSON(w, r, &in) {
		return
	}

	plant, err := h.plants.Review(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err, "проверка растения")
		return
	}
	writeData(w, http.StatusOK, plant, "Статус проверки обновлён")
}

// ArchivePlant — DELETE /api/medicinal-plants/{id}.
func (h *APIHandler) ArchivePlant(w http.ResponseWriter, r *http.Request) {
	if err := h.plants.Archive(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, "архивирование растения")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Карточка растения деактивирована"})
}

// GetPlantVersions — GET /api/medicinal-plants/{id}/versions.
func (h *APIHandler) GetPlantVersions(w http.ResponseWriter, r *http.Request) {
	view, err := h.plants.Versions(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "версии растения")
		return
	}
	writeData(w, http.StatusOK, view, "")
}

// splitList разбирает список через запятую.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
