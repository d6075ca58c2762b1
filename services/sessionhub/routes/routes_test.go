// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/runtimestore"
)

type stubLister struct{}

func (stubLister) ListUnifiedSessions(context.Context, datatypes.SessionFilter, datatypes.PageRequest, datatypes.SortField, datatypes.SortOrder) (*datatypes.SessionPage, error) {
	return &datatypes.SessionPage{Sessions: []*datatypes.SessionEntry{}}, nil
}

type stubReader struct{}

func (stubReader) ListProjects(context.Context) ([]datatypes.ProjectInfo, error) { return nil, nil }
func (stubReader) GetSession(context.Context, string) (*datatypes.SessionEntry, error) {
	return nil, nil
}
func (stubReader) ReadTranscript(context.Context, string, int, int) (*datatypes.TranscriptPage, error) {
	return nil, nil
}
func (stubReader) GetSessionSummary(context.Context, string) (*datatypes.SessionSummary, error) {
	return nil, nil
}

type stubPurpose struct{}

func (stubPurpose) Get(context.Context, string) (*datatypes.PurposeResult, error) {
	return &datatypes.PurposeResult{Source: datatypes.PurposeSourceFallback}, nil
}

type stubStore struct{}

func (stubStore) CreateSession(context.Context, runtimestore.CreateParams) (datatypes.SessionRow, error) {
	return datatypes.SessionRow{}, nil
}
func (stubStore) CompleteSession(context.Context, string, string, string) error { return nil }
func (stubStore) SetSessionPurpose(context.Context, string, string) error       { return nil }
func (stubStore) GetSession(context.Context, string) (datatypes.SessionRow, error) {
	return datatypes.SessionRow{}, nil
}
func (stubStore) ListTabs(context.Context) ([]datatypes.WorkspaceTab, error) { return nil, nil }
func (stubStore) CreateTab(context.Context, string, string, string) (datatypes.WorkspaceTab, error) {
	return datatypes.WorkspaceTab{}, nil
}
func (stubStore) DeleteTab(context.Context, string) error { return nil }

type stubMappings struct{}

func (stubMappings) Upsert(string, string, string, datatypes.SessionSource, string) error {
	return nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, Deps{
		Engine:   stubLister{},
		Reader:   stubReader{},
		Purpose:  stubPurpose{},
		Store:    stubStore{},
		Mappings: stubMappings{},
	})
	return router
}

func TestRoutesRegistered(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/v1/projects", http.StatusOK},
		{http.MethodGet, "/v1/sessions", http.StatusOK},
		{http.MethodGet, "/v1/sessions/abc", http.StatusNotFound}, // stub returns nil entry
		{http.MethodGet, "/v1/sessions/abc/summary", http.StatusNotFound}, // stub returns nil summary
		{http.MethodGet, "/v1/sessions/abc/purpose", http.StatusOK},
		{http.MethodGet, "/v1/workspace/tabs", http.StatusOK},
		{http.MethodGet, "/v1/git/branches", http.StatusBadRequest}, // missing path param
		{http.MethodGet, "/no/such/route", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tt.method, tt.path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, tt.status, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestHealthBody(t *testing.T) {
	router := newTestRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
