// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig for NewRouter
type RouterConfig struct {
	// JWTSecret enables bearer token auth on /api/v1 when set.
	JWTSecret string
	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter wires the handler into a gin engine.
func NewRouter(h *Handler, config RouterConfig) *gin.Engine {
	r := gin.New()
	if config.AccessLog {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery(), cors.Default())

	v1 := r.Group("/api/v1")
	if config.JWTSecret != "" {
		v1.Use(RequireJWT(config.JWTSecret))
	}
	{
		v1.GET("/items", h.ListItems)
		v1.POST("/items", h.AddItems)
		v1.DELETE("/items", h.RemoveItems)
		v1.GET("/items/:id", h.GetItem)
		v1.DELETE("/items/:id", h.RemoveItem)

		v1.GET("/run", h.GetRun)
		v1.PUT("/run/command", h.Command)
		v1.GET("/run/log", h.GetRunLog)

		v1.GET("/settings", h.GetSettings)
		v1.PUT("/settings", h.UpdateSettings)

		v1.GET("/skills", h.Skills)
		v1.POST("/skills/reload", h.ReloadSkills)

		v1.GET("/events", h.Events)
	}

	return r
}
