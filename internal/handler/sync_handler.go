package handler

import (
	"context"
	"net/http"
	"regexp"

	"bizledger/internal/middleware"
	"bizledger/internal/replication"
	"bizledger/internal/service"
	"bizledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// Replication is the part of the replicator the sync endpoints drive.
type Replication interface {
	Health(ctx context.Context) replication.Health
	Pull(ctx context.Context) (bool, error)
	Backup(ctx context.Context, name string) error
	Restore(ctx context.Context, name string) error
}

var backupName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

type SyncHandler struct {
	snapshotService service.SnapshotService
	replication     Replication
}

func NewSyncHandler(snapshotService service.SnapshotService, replication Replication) *SyncHandler {
	return &SyncHandler{snapshotService: snapshotService, replication: replication}
}

func (h *SyncHandler) RegisterRoutes(router *gin.RouterGroup, authz *middleware.Authorizer) {
	sync := router.Group("/api/sync")
	{
		sync.GET("/status", authz.Require(middleware.ObjectSync, middleware.ActionView), h.GetStatus)
		sync.POST("/pull", authz.Require(middleware.ObjectSync, middleware.ActionManage), h.Pull)
		sync.POST("/backups/:name", authz.Require(middleware.ObjectSync, middleware.ActionManage), h.CreateBackup)
		sync.POST("/backups/:name/restore", authz.Require(middleware.ObjectSync, middleware.ActionManage), h.RestoreBackup)
	}
	router.GET("/api/snapshot", authz.Require(middleware.ObjectSync, middleware.ActionManage), h.ExportSnapshot)
}

// GetStatus reports replication health and local revisions
// @Summary      Replication status
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=replication.Health}
// @Router       /api/sync/status [get]
func (h *SyncHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.replication.Health(c.Request.Context())))
}

// Pull replaces local state with the remote snapshot
// @Summary      Pull remote snapshot
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=object}
// @Failure      409  {object}  response.Response
// @Router       /api/sync/pull [post]
func (h *SyncHandler) Pull(c *gin.Context) {
	pulled, err := h.replication.Pull(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"pulled": pulled}))
}

// CreateBackup stores the current snapshot under a name on the remote
// @Summary      Create backup
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Param        name  path      string  true  "Backup name"
// @Success      201   {object}  response.Response
// @Failure      503   {object}  response.Response
// @Router       /api/sync/backups/{name} [post]
func (h *SyncHandler) CreateBackup(c *gin.Context) {
	name, ok := h.backupName(c)
	if !ok {
		return
	}

	if err := h.replication.Backup(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, gin.H{"name": name}))
}

// RestoreBackup replaces local state with a named backup
// @Summary      Restore backup
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Param        name  path      string  true  "Backup name"
// @Success      200   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Failure      503   {object}  response.Response
// @Router       /api/sync/backups/{name}/restore [post]
func (h *SyncHandler) RestoreBackup(c *gin.Context) {
	name, ok := h.backupName(c)
	if !ok {
		return
	}

	if err := h.replication.Restore(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"name": name, "message": "Backup restored"}))
}

// ExportSnapshot returns the full ledger state
// @Summary      Export snapshot
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=model.Snapshot}
// @Router       /api/snapshot [get]
func (h *SyncHandler) ExportSnapshot(c *gin.Context) {
	snap, err := h.snapshotService.Export(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, snap))
}

func (h *SyncHandler) backupName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if !backupName.MatchString(name) {
		badRequest(c, "Invalid backup name: "+name)
		return "", false
	}
	return name, true
}
