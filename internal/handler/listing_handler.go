package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/middleware"
	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

type listingService interface {
	ListCollections(ctx context.Context) (*models.CollectionListing, error)
	ListItems(ctx context.Context, collectionID string) (*models.ItemListing, error)
}

type leaderboardService interface {
	Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// ListingHandler serves the read-only catalog listings and the leaderboard.
type ListingHandler struct {
	listings    listingService
	leaderboard leaderboardService
}

// NewListingHandler builds a new handler.
func NewListingHandler(listings listingService, leaderboard leaderboardService) *ListingHandler {
	return &ListingHandler{listings: listings, leaderboard: leaderboard}
}

// Collections godoc
// @Summary List active collections with contribution counts
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /collections [get]
func (h *ListingHandler) Collections(c *gin.Context) {
	listing, err := h.listings.ListCollections(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "source", listing.Source)
	response.JSON(c, http.StatusOK, listing.Collections, nil, middleware.ExtractMeta(c))
}

// Items godoc
// @Summary List active items of a collection with contribution counts
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param collectionId path string true "Collection ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /collections/{collectionId}/items [get]
func (h *ListingHandler) Items(c *gin.Context) {
	listing, err := h.listings.ListItems(c.Request.Context(), c.Param("collectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "source", listing.Source)
	response.JSON(c, http.StatusOK, listing, nil, middleware.ExtractMeta(c))
}

// Leaderboard godoc
// @Summary Top contributors by lifetime submissions
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries (1-50)"
// @Success 200 {object} response.Envelope
// @Router /leaderboard [get]
func (h *ListingHandler) Leaderboard(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.leaderboard.Top(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
