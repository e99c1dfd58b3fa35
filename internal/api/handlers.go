package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roommap/server/config"
	"roommap/server/internal/camera"
	"roommap/server/internal/geocoding"
	"roommap/server/internal/geometry"
	"roommap/server/internal/mapview"
	"roommap/server/internal/models"
	"roommap/server/internal/queue"
	"roommap/server/internal/scheduler"
	"roommap/server/internal/spatial"
	"roommap/server/internal/viewport"
)

const defaultLeavesLimit = 10

// ListingStore is the persisted listing state the handlers read and update.
type ListingStore interface {
	AllListings() ([]models.PropertyRecord, error)
	FavoriteIDs() (map[string]struct{}, error)
	SetFavorite(listingID string, favorite bool) error
}

// BatchPusher accepts listing batches for asynchronous storage.
type BatchPusher interface {
	Push(records []*models.PropertyRecord) error
}

// Searcher geocodes free-text searches.
type Searcher interface {
	Search(ctx context.Context, query string) (*models.SearchPin, error)
}

type Handler struct {
	engine       *mapview.Engine
	store        ListingStore
	queue        BatchPusher
	geocoder     Searcher
	logger       *logrus.Logger
	maxBatchSize int
}

type ViewportQuery struct {
	Lat      *float64 `form:"lat"`
	Lng      *float64 `form:"lng"`
	LatDelta *float64 `form:"latDelta"`
	LngDelta *float64 `form:"lngDelta"`
}

type CameraQuery struct {
	ViewportQuery
	Query  string   `form:"q"`
	Width  *float64 `form:"width"`
	Height *float64 `form:"height"`
}

type PageQuery struct {
	Limit  *int `form:"limit"`
	Offset int  `form:"offset"`
}

type FavoritesOnlyRequest struct {
	Enabled *bool `json:"enabled"`
}

func NewHandler(engine *mapview.Engine, store ListingStore, pusher BatchPusher, geocoder Searcher, maxBatchSize int, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{
		engine:       engine,
		store:        store,
		queue:        pusher,
		geocoder:     geocoder,
		logger:       logger,
		maxBatchSize: maxBatchSize,
	}
}

// viewport returns the requested region, or false when a field is missing.
func (q ViewportQuery) viewport() (viewport.Viewport, bool) {
	if q.Lat == nil || q.Lng == nil || q.LatDelta == nil || q.LngDelta == nil {
		return viewport.Viewport{}, false
	}
	return viewport.Viewport{
		Latitude:       *q.Lat,
		Longitude:      *q.Lng,
		LatitudeDelta:  *q.LatDelta,
		LongitudeDelta: *q.LngDelta,
	}, true
}

func (h *Handler) GetClusters(c *gin.Context) {
	var q ViewportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.logger.WithError(err).Error("Failed to parse viewport")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid viewport parameters"})
		return
	}
	v, ok := q.viewport()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat, lng, latDelta and lngDelta are required"})
		return
	}

	c.JSON(http.StatusOK, nodesCollection(h.engine.Nodes(v)))
}

// clusterID parses the :id path parameter, answering the request on failure.
func (h *Handler) clusterID(c *gin.Context) (models.ClusterID, bool) {
	id, err := models.ParseClusterID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cluster id"})
		return models.ClusterID{}, false
	}
	return id, true
}

// clusterError maps index lookup errors to responses. Stale ids mean the client
// holds clusters from a replaced build and should re-query the viewport.
func clusterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, spatial.ErrStaleCluster):
		c.JSON(http.StatusGone, gin.H{"error": "Cluster is from a previous build"})
	case errors.Is(err, spatial.ErrClusterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cluster not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cluster"})
	}
}

func (h *Handler) GetClusterLeaves(c *gin.Context) {
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var page PageQuery
	if err := c.ShouldBindQuery(&page); err != nil || page.Offset < 0 || (page.Limit != nil && *page.Limit < 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit or offset"})
		return
	}
	limit := defaultLeavesLimit
	if page.Limit != nil {
		limit = *page.Limit
	}

	leaves, err := h.engine.Leaves(id, limit, page.Offset)
	if err != nil {
		clusterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cluster_id": id.String(),
		"leaves":     leaves,
	})
}

func (h *Handler) GetClusterRegion(c *gin.Context) {
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	region, ok := h.engine.ClusterRegion(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cluster cannot be expanded"})
		return
	}
	c.JSON(http.StatusOK, region)
}

func (h *Handler) GetClusterHull(c *gin.Context) {
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	leaves, err := h.engine.Leaves(id, 0, 0)
	if err != nil {
		clusterError(c, err)
		return
	}
	hull := geometry.ClusterHull(id, leaves, geometry.DefaultBuffer)
	if hull == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cluster has no outline"})
		return
	}
	c.JSON(http.StatusOK, hull)
}

// TapCluster handles a cluster tap and returns the camera move it issued, if any.
func (h *Handler) TapCluster(c *gin.Context) {
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	before, _ := h.engine.Scheduler().InFlight(scheduler.CommandCameraMove)
	h.engine.TapCluster(id)

	cmd, moving := h.engine.Scheduler().InFlight(scheduler.CommandCameraMove)
	moving = moving && cmd.Seq != before.Seq
	c.JSON(http.StatusOK, gin.H{
		"camera":    commandOrNil(cmd, moving),
		"selection": h.engine.Selection(),
	})
}

func commandOrNil(cmd scheduler.Command, ok bool) *scheduler.Command {
	if !ok {
		return nil
	}
	return &cmd
}

func (h *Handler) PostListings(c *gin.Context) {
	var records []*models.PropertyRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		h.logger.WithError(err).Error("Failed to parse listing batch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing batch"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Listing batch is empty"})
		return
	}
	if h.maxBatchSize > 0 && len(records) > h.maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Listing batch too large",
			"max":   h.maxBatchSize,
		})
		return
	}

	if err := h.queue.Push(records); err != nil {
		h.logger.WithError(err).WithField("batch_size", len(records)).Error("Failed to queue listing batch")
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": len(records)})
}

func (h *Handler) GetListings(c *gin.Context) {
	records, err := h.store.AllListings()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) setFavorite(c *gin.Context, favorite bool) {
	id := c.Param("id")
	if err := h.store.SetFavorite(id, favorite); err != nil {
		h.logger.WithError(err).WithField("listing_id", id).Error("Failed to update favorite")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update favorite"})
		return
	}
	ids, err := h.store.FavoriteIDs()
	if err != nil {
		h.logger.WithError(err).Error("Failed to reload favorites")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload favorites"})
		return
	}
	h.engine.SetFavorites(ids)
	c.JSON(http.StatusOK, gin.H{"listing_id": id, "favorite": favorite})
}

func (h *Handler) PutFavorite(c *gin.Context) {
	h.setFavorite(c, true)
}

func (h *Handler) DeleteFavorite(c *gin.Context) {
	h.setFavorite(c, false)
}

func (h *Handler) PutFavoritesOnly(c *gin.Context) {
	var req FavoritesOnlyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	h.engine.SetFavoritesOnly(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"favorites_only": *req.Enabled})
}

func (h *Handler) SelectBuilding(c *gin.Context) {
	key := c.Param("key")
	if err := h.engine.TapBuilding(key); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.engine.Selection())
}

func (h *Handler) SelectUnit(c *gin.Context) {
	if err := h.engine.ChooseFromSheet(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.engine.Selection())
}

func (h *Handler) SelectBackground(c *gin.Context) {
	handled := h.engine.TapBackground()
	c.JSON(http.StatusOK, gin.H{
		"handled":   handled,
		"selection": h.engine.Selection(),
	})
}

func (h *Handler) CloseSheet(c *gin.Context) {
	h.engine.CloseSheet()
	c.JSON(http.StatusOK, h.engine.Selection())
}

func (h *Handler) GetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Selection())
}

// GetSearchPin geocodes q when given, stores the result as the search pin and
// projects the pin for the camera in the query.
func (h *Handler) GetSearchPin(c *gin.Context) {
	var q CameraQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid camera parameters"})
		return
	}

	if q.Query != "" {
		pin, err := h.geocoder.Search(c.Request.Context(), q.Query)
		switch {
		case errors.Is(err, geocoding.ErrNoResults):
			c.JSON(http.StatusNotFound, gin.H{"error": "No results found"})
			return
		case err != nil:
			h.logger.WithError(err).WithField("query", q.Query).Error("Failed to geocode search")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Geocoding failed"})
			return
		}
		h.engine.SetSearchPin(pin)
	}

	pin := h.engine.SearchPin()
	if pin == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No search pin"})
		return
	}

	resp := gin.H{"pin": pin, "screen": nil, "visible": false}
	if v, ok := q.viewport(); ok && q.Width != nil && q.Height != nil {
		cam := camera.Camera{Viewport: v, Width: *q.Width, Height: *q.Height}
		if sp, ok := h.engine.SearchPinPosition(cam); ok {
			resp["screen"] = sp
			resp["visible"] = sp.X >= 0 && sp.X <= cam.Width && sp.Y >= 0 && sp.Y <= cam.Height
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeleteSearchPin(c *gin.Context) {
	h.engine.SetSearchPin(nil)
	c.Status(http.StatusNoContent)
}

// GoToCurrentLocation moves the camera to the posted location. An empty body sends
// the camera to the fallback region.
func (h *Handler) GoToCurrentLocation(c *gin.Context) {
	var coord *mapview.Coordinate
	if c.Request.ContentLength != 0 {
		coord = &mapview.Coordinate{}
		if err := c.ShouldBindJSON(coord); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location"})
			return
		}
	}
	c.JSON(http.StatusOK, h.engine.GoToCurrentLocation(coord))
}

func (h *Handler) GetCamera(c *gin.Context) {
	move, moving := h.engine.Scheduler().InFlight(scheduler.CommandCameraMove)
	sheet, toggling := h.engine.Scheduler().InFlight(scheduler.CommandSheetToggle)
	c.JSON(http.StatusOK, gin.H{
		"camera": commandOrNil(move, moving),
		"sheet":  commandOrNil(sheet, toggling),
	})
}

func (h *Handler) GetRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": config.DefaultRegion(),
		"regions": config.Regions(),
	})
}

func (h *Handler) GetRegion(c *gin.Context) {
	region := config.GetRegionByName(c.Param("name"))
	if region == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown region " + strconv.Quote(c.Param("name"))})
		return
	}
	c.JSON(http.StatusOK, region)
}
