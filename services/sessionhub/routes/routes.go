// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/handlers"
)

// Deps carries everything the route table needs.
type Deps struct {
	Engine   handlers.SessionLister
	Reader   handlers.TranscriptReader
	Purpose  handlers.PurposeProvider
	Store    handlers.RuntimeStore
	Mappings handlers.MappingWriter
}

// SetupRoutes registers the session hub API on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/projects", handlers.ListProjects(deps.Reader))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(deps.Engine))
			sessions.GET("/:sessionId", handlers.GetSession(deps.Reader))
			sessions.GET("/:sessionId/transcript", handlers.GetTranscript(deps.Reader))
			sessions.GET("/:sessionId/summary", handlers.GetSessionSummary(deps.Reader))
			sessions.GET("/:sessionId/purpose", handlers.GetSessionPurpose(deps.Purpose))
		}

		workspace := v1.Group("/workspace")
		{
			workspace.GET("/tabs", handlers.ListTabs(deps.Store))
			workspace.POST("/tabs", handlers.CreateTab(deps.Store))
			workspace.DELETE("/tabs/:tabId", handlers.DeleteTab(deps.Store))
		}

		git := v1.Group("/git")
		{
			git.GET("/branches", handlers.GitBranches())
			git.GET("/log", handlers.GitLog())
			git.GET("/diff", handlers.GitDiff())
		}

		agent := v1.Group("/agent")
		{
			agent.POST("/sessions", handlers.CreateAgentSession(deps.Store))
			agent.POST("/sessions/:clientSessionId/complete",
				handlers.CompleteAgentSession(deps.Store, deps.Mappings))
			agent.PUT("/sessions/:clientSessionId/purpose",
				handlers.SetAgentSessionPurpose(deps.Store))
		}
	}
}
