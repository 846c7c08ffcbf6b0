package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/core"
	"github.com/pokeescape/pokeescape-server/internal/proto"
)

const snapshotTimeout = 2 * time.Second

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	maps     MapCatalog
	registry Registry
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(maps MapCatalog, registry Registry, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		maps:     maps,
		registry: registry,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	Server         string `json:"server"`
	Version        string `json:"version"`
	CatalogVersion string `json:"catalog_version,omitempty"`
}

// MapSummary is one entry of the map listing.
type MapSummary struct {
	Name   string `json:"name"`
	Author string `json:"author,omitempty"`
}

// GroupsResponse is the registry snapshot.
type GroupsResponse struct {
	Clients map[core.ClientID]string   `json:"clients"`
	Groups  map[string][]core.ClientID `json:"groups"`
}

// Info reports server and catalog versions.
// GET /
func (h *APIHandlers) Info(c *gin.Context) {
	resp := InfoResponse{Server: "PokeEscape", Version: proto.ServerVersion}
	if h.maps != nil {
		resp.CatalogVersion = h.maps.Version().String()
	}
	c.JSON(http.StatusOK, resp)
}

// ListMaps lists the maps in the catalog.
// GET /api/maps
func (h *APIHandlers) ListMaps(c *gin.Context) {
	maps := []MapSummary{}
	if h.maps != nil {
		for _, name := range h.maps.AvailableMaps() {
			author, _ := h.maps.Author(name)
			maps = append(maps, MapSummary{Name: name, Author: author})
		}
	}
	c.JSON(http.StatusOK, maps)
}

// GetMap returns the rendered map payload.
// GET /api/maps/:name
func (h *APIHandlers) GetMap(c *gin.Context) {
	name := c.Param("name")
	if h.maps == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "could not load map"})
		return
	}

	payload, err := h.maps.Render(name)
	if err != nil {
		h.log.Debug().Err(err).Str("map", name).Msg("could not load map")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "could not load map"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
}

// Groups returns a snapshot of identified clients and groups.
// GET /api/groups
func (h *APIHandlers) Groups(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "registry unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snap, err := h.registry.Snapshot(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("registry snapshot failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "registry unavailable"})
		return
	}
	c.JSON(http.StatusOK, GroupsResponse{Clients: snap.Clients, Groups: snap.Groups})
}
