// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/logger"
	"github.com/ZSC714725/dropconvert/internal/notify"
	"github.com/ZSC714725/dropconvert/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Config for the Handler
type Config struct {
	Manager  *task.Manager
	FFmpeg   ffmpeg.FFmpeg
	Settings *config.Settings
	Hub      *notify.Hub
	// Codec is the audio encoder conversions use, reported by Skills.
	Codec  string
	Logger logger.Logger
}

// Handler holds dependencies
type Handler struct {
	manager  *task.Manager
	ffmpeg   ffmpeg.FFmpeg
	settings *config.Settings
	hub      *notify.Hub
	codec    string
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates API handler
func NewHandler(config Config) *Handler {
	h := &Handler{
		manager:  config.Manager,
		ffmpeg:   config.FFmpeg,
		settings: config.Settings,
		hub:      config.Hub,
		codec:    config.Codec,
		logger:   config.Logger,
		upgrader: websocket.Upgrader{
			// CORS is open for the API as well
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if h.logger == nil {
		h.logger = logger.Nop()
	}
	return h
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' }) {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ListItems GET /api/v1/items
func (h *Handler) ListItems(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Items())
}

// GetItem GET /api/v1/items/:id
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.manager.Item(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown item ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, item)
}

// AddItems POST /api/v1/items
func (h *Handler) AddItems(c *gin.Context) {
	var req DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.Paths) == "" && len(req.Files) == 0 {
		errResp(c, http.StatusBadRequest, "No paths given", "")
		return
	}

	var res task.DropResult
	if strings.TrimSpace(req.Paths) != "" {
		dropped, err := h.manager.Drop(req.Paths)
		if err != nil {
			errResp(c, http.StatusServiceUnavailable, "Drop failed", err.Error())
			return
		}
		res = dropped
	}
	if len(req.Files) > 0 {
		added, err := h.manager.Add(req.Files...)
		if err != nil {
			errResp(c, http.StatusServiceUnavailable, "Drop failed", err.Error())
			return
		}
		res.Added += added.Added
		res.Rejected += added.Rejected
		res.Duplicates += added.Duplicates
		res.Total = added.Total
	}

	c.JSON(http.StatusOK, res)
}

// RemoveItems DELETE /api/v1/items?id=a,b or with a RemoveRequest body
func (h *Handler) RemoveItems(c *gin.Context) {
	keys := splitIDs(c.DefaultQuery("id", ""))
	if len(keys) == 0 && c.Request.ContentLength != 0 {
		var req RemoveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
		keys = append(req.IDs, req.Paths...)
	}
	h.remove(c, keys)
}

// RemoveItem DELETE /api/v1/items/:id
func (h *Handler) RemoveItem(c *gin.Context) {
	h.remove(c, []string{c.Param("id")})
}

func (h *Handler) remove(c *gin.Context, keys []string) {
	if len(keys) == 0 {
		errResp(c, http.StatusBadRequest, "No items given", "")
		return
	}

	n, err := h.manager.Remove(keys...)
	if err != nil {
		if errors.Is(err, task.ErrRunActive) {
			errResp(c, http.StatusConflict, "Conversion in progress", err.Error())
			return
		}
		errResp(c, http.StatusServiceUnavailable, "Remove failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, RemoveResponse{Removed: n, Total: len(h.manager.Items())})
}

// GetRun GET /api/v1/run
func (h *Handler) GetRun(c *gin.Context) {
	resp := RunResponse{RunInfo: h.manager.Run()}
	if status, ok := h.ffmpeg.Current(); ok {
		resp.Encoder = &status
	}
	c.JSON(http.StatusOK, resp)
}

// GetRunLog GET /api/v1/run/log
func (h *Handler) GetRunLog(c *gin.Context) {
	lines := h.ffmpeg.Log()
	report := RunReport{Log: make([][2]string, len(lines))}
	for i, line := range lines {
		report.Log[i] = [2]string{
			line.Timestamp.Format("2006-01-02 15:04:05.000"),
			line.Data,
		}
	}
	c.JSON(http.StatusOK, report)
}

// Command PUT /api/v1/run/command
func (h *Handler) Command(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var err error
	switch req.Command {
	case "start":
		err = h.manager.Start()
	case "cancel", "stop":
		err = h.manager.Cancel()
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: start, cancel")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, task.ErrRunActive), errors.Is(err, task.ErrNoItems), errors.Is(err, task.ErrNotRunning):
			errResp(c, http.StatusConflict, "Command failed", err.Error())
		default:
			errResp(c, http.StatusServiceUnavailable, "Command failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, "OK")
}

// GetSettings GET /api/v1/settings
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

// UpdateSettings PUT /api/v1/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	if req.Bitrate != nil {
		if err := h.settings.SetBitrate(*req.Bitrate); err != nil {
			errResp(c, http.StatusBadRequest, "Invalid bitrate", err.Error())
			return
		}
	}
	if req.OutputDir != nil {
		h.settings.SetOutputDir(*req.OutputDir)
	}

	v := h.settings.Snapshot()
	h.logger.Info("settings changed: output_dir=%q bitrate=%dk", v.OutputDir, v.Bitrate)
	c.JSON(http.StatusOK, v)
}
