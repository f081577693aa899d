package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/models"
	"github.com/mr1hm/go-safe-routes/internal/repository"
)

const (
	defaultNearbyRadiusKm = 1.0
	maxNearbyRadiusKm     = 50.0
	defaultVerifier       = "admin"
)

type createHazardRequest struct {
	Type            string             `json:"type"`
	Location        *models.Coordinate `json:"location"`
	Severity        string             `json:"severity"`
	Address         string             `json:"address"`
	Description     string             `json:"description"`
	ContributorName string             `json:"contributorName"`
}

type statusRequest struct {
	Status     string `json:"status"`
	VerifiedBy string `json:"verifiedBy"`
}

type voteRequest struct {
	Vote string `json:"vote"`
}

func (h *Handler) listHazards(c *gin.Context) {
	const op = "api.listHazards"

	filter, err := parseFilter(c, op)
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("lat") != "" || c.Query("lng") != "" {
		h.nearbyHazards(c, op, filter)
		return
	}

	hazards, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	writeGeoJSON(c, toGeoJSON(hazards))
}

func (h *Handler) nearbyHazards(c *gin.Context, op string, filter repository.Filter) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		writeError(c, apperr.Validation(op, "invalid lat %q", c.Query("lat")))
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		writeError(c, apperr.Validation(op, "invalid lng %q", c.Query("lng")))
		return
	}
	center := models.Coordinate{Lat: lat, Lon: lng}
	if err := center.Validate(); err != nil {
		writeError(c, apperr.Validation(op, "%v", err))
		return
	}

	radius := defaultNearbyRadiusKm
	if r := c.Query("radius"); r != "" {
		radius, err = strconv.ParseFloat(r, 64)
		if err != nil || radius <= 0 || radius > maxNearbyRadiusKm {
			writeError(c, apperr.Validation(op, "radius must be in (0, %v] km", maxNearbyRadiusKm))
			return
		}
	}

	hazards, err := h.repo.Nearby(c.Request.Context(), center, radius, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	writeGeoJSON(c, nearbyToGeoJSON(hazards))
}

func parseFilter(c *gin.Context, op string) (repository.Filter, error) {
	filter := repository.Filter{
		Limit: repository.DefaultListLimit,
	}

	if t := c.Query("type"); t != "" {
		ht, err := models.ParseHazardType(t)
		if err != nil {
			return filter, apperr.Validation(op, "%v", err)
		}
		filter.Type = &ht
	}
	if s := c.Query("status"); s != "" {
		st, err := models.ParseStatus(s)
		if err != nil {
			return filter, apperr.Validation(op, "%v", err)
		}
		filter.Status = &st
	}
	if l := c.Query("limit"); l != "" {
		lim, err := strconv.Atoi(l)
		if err != nil || lim <= 0 || lim > repository.MaxListLimit {
			return filter, apperr.Validation(op, "limit must be in [1, %d]", repository.MaxListLimit)
		}
		filter.Limit = lim
	}
	return filter, nil
}

func (h *Handler) createHazard(c *gin.Context) {
	const op = "api.createHazard"

	var body createHazardRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Validation(op, "invalid request body: %v", err))
		return
	}
	if body.Location == nil {
		writeError(c, apperr.Validation(op, "location is required"))
		return
	}
	hazardType, err := models.ParseHazardType(body.Type)
	if err != nil {
		writeError(c, apperr.Validation(op, "%v", err))
		return
	}
	severity, err := models.ParseSeverity(body.Severity)
	if err != nil {
		writeError(c, apperr.Validation(op, "%v", err))
		return
	}

	hazard := &models.HazardReport{
		Type:            hazardType,
		Location:        *body.Location,
		Severity:        severity,
		Status:          models.StatusPending,
		Address:         body.Address,
		Description:     body.Description,
		ContributorName: body.ContributorName,
	}
	if err := h.repo.Create(c.Request.Context(), hazard); err != nil {
		writeError(c, err)
		return
	}

	h.index.Invalidate()
	c.JSON(http.StatusCreated, hazard)
}

func (h *Handler) getHazard(c *gin.Context) {
	hazard, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hazard)
}

func (h *Handler) updateHazardStatus(c *gin.Context) {
	const op = "api.updateHazardStatus"

	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Validation(op, "invalid request body: %v", err))
		return
	}
	status, err := models.ParseStatus(body.Status)
	if err != nil {
		writeError(c, apperr.Validation(op, "%v", err))
		return
	}
	verifiedBy := body.VerifiedBy
	if verifiedBy == "" {
		verifiedBy = defaultVerifier
	}

	hazard, err := h.repo.UpdateStatus(c.Request.Context(), c.Param("id"), status, verifiedBy)
	if err != nil {
		writeError(c, err)
		return
	}

	h.index.Invalidate()
	c.JSON(http.StatusOK, hazard)
}

func (h *Handler) voteHazard(c *gin.Context) {
	const op = "api.voteHazard"

	var body voteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Validation(op, "invalid request body: %v", err))
		return
	}

	var up bool
	switch body.Vote {
	case "upvote":
		up = true
	case "downvote":
		up = false
	default:
		writeError(c, apperr.Validation(op, "vote must be upvote or downvote, got %q", body.Vote))
		return
	}

	hazard, err := h.repo.Vote(c.Request.Context(), c.Param("id"), up)
	if err != nil {
		writeError(c, err)
		return
	}

	// Votes shift credibility weighting.
	h.index.Invalidate()
	c.JSON(http.StatusOK, hazard)
}

func (h *Handler) deleteHazard(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	h.index.Invalidate()
	c.Status(http.StatusNoContent)
}

func (h *Handler) hazardStatistics(c *gin.Context) {
	stats, err := h.repo.Statistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
