package heatlinesdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatline/internal/config"
	"heatline/internal/db"
	"heatline/internal/engine"
	"heatline/internal/migrate"
	"heatline/internal/server"
	heatlinesdk "heatline/sdk/go"
)

func newClient(t *testing.T) *heatlinesdk.Client {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	e, err := engine.New(conn, dialect, config.Default())
	require.NoError(t, err)
	_, err = e.CreateProject(context.Background(), engine.ProjectCreateOptions{ID: "p1", Name: "EFH Schmidt"})
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := heatlinesdk.New(srv.URL, "p1")
	c.ActorID = "sdk"
	return c
}

func TestClientPhaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	p, err := c.GetProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EFH Schmidt", p.Name)

	ph, err := c.GetPhase(ctx, "system_design")
	require.NoError(t, err)
	assert.False(t, ph.Stored)
	assert.Equal(t, 22, ph.Summary.Percent)

	preview, err := c.PreviewPhase(ctx, "system_design", map[string]any{"heat_source": "Erdsonde"})
	require.NoError(t, err)
	assert.Equal(t, 33, preview.Summary.Percent)

	saved, err := c.SavePhase(ctx, "system_design", map[string]any{
		"heat_pump_type":           "Sole/Wasser",
		"heating_capacity_planned": 9,
		"heat_source":              "Erdsonde",
	})
	require.NoError(t, err)
	assert.True(t, saved.Stored)
	assert.Equal(t, 56, saved.Summary.Percent)
	assert.Empty(t, saved.Summary.MissingRequired)

	// clearing a field with nil
	saved, err = c.SavePhase(ctx, "system_design", map[string]any{"heat_source": nil})
	require.NoError(t, err)
	assert.Equal(t, 44, saved.Summary.Percent)
	assert.Equal(t, []string{"heat_source"}, saved.Summary.MissingRequired)
}

func TestClientChecklistAndOverview(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	res, err := c.AddChecklistItem(ctx, heatlinesdk.ChecklistItem{Category: "Technik", Description: "Sondenbohrung beauftragen", Required: true, Status: "Erledigt"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Item.ID)
	assert.Empty(t, res.Warning)

	_, err = c.AddChecklistItem(ctx, heatlinesdk.ChecklistItem{Category: "Technik", Description: "Hydraulikschema", Required: true})
	require.NoError(t, err)
	_, err = c.AddChecklistItem(ctx, heatlinesdk.ChecklistItem{Category: "Betrieb", Description: "Fotos", Required: false})
	require.NoError(t, err)

	ov, err := c.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, ov.Project.Progress)
	assert.Equal(t, heatlinesdk.ChecklistSummary{Total: 3, Required: 2, RequiredDone: 1, Percent: 50}, ov.Checklist)
	require.Len(t, ov.Phases, 4)
	assert.Equal(t, "technical_data", ov.Phases[0].Phase)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.SavePhase(ctx, "system_design", map[string]any{"cop": "hoch"})
	var apiErr *heatlinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_field", apiErr.Code)

	c.ProjectID = "missing"
	_, err = c.GetProject(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}
