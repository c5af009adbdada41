// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianDeck/pkg/extensions"
	"github.com/AleutianAI/AleutianDeck/services/deck/handlers"
	"github.com/AleutianAI/AleutianDeck/services/deck/middleware"
)

// Deps is everything the router needs.
type Deps struct {
	Handler     *handlers.DeckHandler
	Extensions  extensions.ServiceOptions
	ServiceName string
	Logger      *slog.Logger

	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds a gin engine with recovery, tracing and request logging
// installed and every route registered.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if deps.ServiceName != "" {
		router.Use(otelgin.Middleware(deps.ServiceName))
	}
	router.Use(middleware.RequestLogger(deps.Logger))
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers /health, /metrics and the /v1 document API.
//
// Read routes need extensions.ActionRead, editing routes
// extensions.ActionCommand, reset and dispose extensions.ActionAdmin.
func SetupRoutes(router *gin.Engine, deps Deps) {
	ext := deps.Extensions.WithDefaults()
	h := deps.Handler

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	read := middleware.RequireAction(ext.AuthzProvider, ext.AuditLogger, extensions.ActionRead)
	edit := middleware.RequireAction(ext.AuthzProvider, ext.AuditLogger, extensions.ActionCommand)
	admin := middleware.RequireAction(ext.AuthzProvider, ext.AuditLogger, extensions.ActionAdmin)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(ext.AuthProvider, ext.AuditLogger))
	{
		docs := v1.Group("/documents/:id")
		{
			docs.POST("/load", read, h.Load)
			docs.GET("", read, h.Get)
			docs.GET("/history", read, h.History)
			docs.GET("/events", read, h.Events)
			docs.GET("/ws", read, h.WebSocket)

			docs.POST("/commands", edit, h.Command)
			docs.POST("/undo", edit, h.Undo)
			docs.POST("/redo", edit, h.Redo)
			docs.POST("/navigate", edit, h.Navigate)

			docs.POST("/reset", admin, h.Reset)
			docs.DELETE("", admin, h.Dispose)
		}
	}
}
