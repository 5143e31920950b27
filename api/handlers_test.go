/*
handlers_test.go - Handler tests over the real router and store

Tests drive the chi router with httptest requests so routing, principal
extraction, JSON adaptation and status mapping are all exercised
together against an in-memory store.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrapink/cycle-engine/cycle"
	"github.com/hidrapink/cycle-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type apiFixture struct {
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, nil, nil)
	h.Manager.Now = func() time.Time {
		return time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
	return &apiFixture{handler: h, router: NewRouter(h), store: store}
}

// do sends a JSON request as the given principal and returns the
// recorded response.
func (f *apiFixture) do(t *testing.T, method, path string, p *Principal, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if p != nil {
		req.Header.Set("X-Role", string(p.Role))
		if p.Role == RoleInfluencer {
			req.Header.Set("X-Influencer-Id", fmt.Sprintf("%d", p.InfluencerID))
		}
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) asMaster(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, method, path, &Principal{Role: RoleMaster}, body)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (f *apiFixture) addInfluencer(t *testing.T, name, coupon string) InfluencerDTO {
	t.Helper()
	rec := f.asMaster(t, http.MethodPost, "/api/influencers",
		CreateInfluencerRequest{Name: name, Coupon: coupon})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody[InfluencerDTO](t, rec)
}

// =============================================================================
// PRINCIPAL EXTRACTION
// =============================================================================

func TestRouter_RejectsMissingPrincipal(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cycles/current", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_MasterOnlyEndpoints(t *testing.T) {
	// GIVEN: an influencer principal
	f := newAPIFixture(t)
	inf := &Principal{Role: RoleInfluencer, InfluencerID: 1}

	// WHEN / THEN: master surfaces are refused
	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/api/sales"},
		{http.MethodPost, "/api/cycles/1/close"},
		{http.MethodPost, "/api/sales/import/preview"},
		{http.MethodPost, "/api/influencers"},
	} {
		rec := f.do(t, probe.method, probe.path, inf, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", probe.method, probe.path)
	}
}

func TestRouter_InfluencerCannotTouchForeignPlan(t *testing.T) {
	// GIVEN: influencers 1 and 2
	f := newAPIFixture(t)
	f.addInfluencer(t, "Ana", "ANA10")
	f.addInfluencer(t, "Bia", "BIA10")

	// WHEN: influencer 2 reads influencer 1's plan
	rec := f.do(t, http.MethodGet, "/api/influencers/1/plan",
		&Principal{Role: RoleInfluencer, InfluencerID: 2}, nil)

	// THEN
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// CYCLES
// =============================================================================

func TestGetCurrentCycle_Idempotent(t *testing.T) {
	f := newAPIFixture(t)

	first := decodeBody[CycleDTO](t, f.asMaster(t, http.MethodPost, "/api/cycles/current", nil))
	second := decodeBody[CycleDTO](t, f.asMaster(t, http.MethodPost, "/api/cycles/current", nil))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2026, first.Year)
	assert.Equal(t, 3, first.Month)
	assert.Equal(t, "open", first.Status)
}

// =============================================================================
// PLAN FLOW
// =============================================================================

func TestPlanLifecycle_EndToEnd(t *testing.T) {
	// GIVEN: an influencer and the current cycle
	f := newAPIFixture(t)
	ana := f.addInfluencer(t, "Ana", "ANA10")
	self := &Principal{Role: RoleInfluencer, InfluencerID: ana.ID}
	planPath := fmt.Sprintf("/api/influencers/%d/plan", ana.ID)

	// WHEN: the influencer schedules five dates, using an alias for
	// the script field and a loose append flag
	entries := []map[string]any{
		{"date": "02/03/2026"},
		{"date": "03/03/2026"},
		{"date": "04/03/2026"},
		{"date": "05/03/2026"},
		{"date": "06/03/2026", "contentScriptId": nil, "append": "nao"},
	}
	rec := f.do(t, http.MethodPut, planPath, self, map[string]any{"entries": entries})
	require.Equal(t, http.StatusOK, rec.Code)

	var board struct {
		Plans []PlanDTO `json:"plans"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&board))
	require.Len(t, board.Plans, 5)

	// AND: each delivery is posted then approved by a master
	for _, plan := range board.Plans {
		rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/plans/%d/post", plan.ID), self, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = f.asMaster(t, http.MethodPost, fmt.Sprintf("/api/plans/%d/approve", plan.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// AND: a 100 point sale lands
	rec = f.asMaster(t, http.MethodPost, "/api/sales", SaleRequest{
		Coupon: "ANA10", OrderNumber: "#1001", Date: "07/03/2026", Points: "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// THEN: the dashboard shows the 125% band applied
	dash := decodeBody[DashboardDTO](t, f.do(t, http.MethodGet,
		fmt.Sprintf("/api/influencers/%d/dashboard", ana.ID), self, nil))
	assert.Equal(t, 5, dash.Progress.Validated)
	assert.Equal(t, "1.25", dash.Commission.Multiplier.String())
	assert.Equal(t, int64(100), dash.Commission.BasePoints)
	assert.Equal(t, int64(125), dash.Commission.TotalPoints)

	// AND: closing the cycle freezes the same numbers
	closeRec := f.asMaster(t, http.MethodPost, fmt.Sprintf("/api/cycles/%d/close", dash.Cycle.ID), nil)
	require.Equal(t, http.StatusOK, closeRec.Code)
	closed := decodeBody[CloseCycleDTO](t, closeRec)
	require.Len(t, closed.Summaries, 1)
	assert.Equal(t, int64(100), closed.Summaries[0].BasePoints)
	assert.Equal(t, int64(125), closed.Summaries[0].TotalPoints)
	assert.Equal(t, 5, closed.Summaries[0].DeliveriesPlanned)
	assert.Equal(t, 5, closed.Summaries[0].DeliveriesCompleted)

	// AND: closing again is a conflict
	assert.Equal(t, http.StatusConflict,
		f.asMaster(t, http.MethodPost, fmt.Sprintf("/api/cycles/%d/close", dash.Cycle.ID), nil).Code)
}

func TestApprovePlan_AlreadyValidatedConflict(t *testing.T) {
	// GIVEN: a validated plan
	f := newAPIFixture(t)
	ana := f.addInfluencer(t, "Ana", "ANA10")
	self := &Principal{Role: RoleInfluencer, InfluencerID: ana.ID}

	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/influencers/%d/plan", ana.ID), self,
		map[string]any{"entries": []map[string]any{{"date": "05/03/2026"}}})
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Plans []PlanDTO `json:"plans"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&board))
	planID := board.Plans[0].ID

	approvePath := fmt.Sprintf("/api/plans/%d/approve", planID)
	require.Equal(t, http.StatusOK, f.asMaster(t, http.MethodPost, approvePath, nil).Code)

	// WHEN: approving again
	rec = f.asMaster(t, http.MethodPost, approvePath, nil)

	// THEN: conflict, and the plan stays validated
	assert.Equal(t, http.StatusConflict, rec.Code)
	plan, err := f.store.GetPlan(context.Background(), planID)
	require.NoError(t, err)
	assert.Equal(t, cycle.PlanValidated, plan.Status)
}

// =============================================================================
// SALES IMPORT
// =============================================================================

func TestSalesImport_PreviewThenConfirmThenConflict(t *testing.T) {
	// GIVEN: two of three rows resolve to registered coupons
	f := newAPIFixture(t)
	f.addInfluencer(t, "Ana", "ANA10")
	f.addInfluencer(t, "Bia", "BIA10")

	raw := "#1001;ANA10;05/03/2026;100\n" +
		"#1002;GHOST;06/03/2026;50\n" +
		"#1003;BIA10;07/03/2026;30\n"
	body := ImportRequest{Text: raw}

	// WHEN: previewing
	rec := f.asMaster(t, http.MethodPost, "/api/sales/import/preview", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		Summary struct {
			ValidCount int `json:"valid_count"`
			ErrorCount int `json:"error_count"`
		} `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&preview))
	assert.Equal(t, 2, preview.Summary.ValidCount)
	assert.Equal(t, 1, preview.Summary.ErrorCount)

	// AND: confirming
	rec = f.asMaster(t, http.MethodPost, "/api/sales/import/confirm", body)
	require.Equal(t, http.StatusOK, rec.Code)
	commit := decodeBody[ImportCommitDTO](t, rec)
	assert.Equal(t, 2, commit.Inserted)
	assert.Equal(t, 1, commit.Ignored)

	// THEN: re-confirming the same text conflicts with the analysis
	// attached for the UI
	rec = f.asMaster(t, http.MethodPost, "/api/sales/import/confirm", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decodeBody[ErrorResponse](t, rec)
	require.NotNil(t, errResp.Analysis)
	assert.Equal(t, 0, errResp.Analysis.Summary.ValidCount)
}

// =============================================================================
// SINGLE SALE CRUD
// =============================================================================

func TestCreateSale_DuplicateOrderConflict(t *testing.T) {
	// GIVEN: order #1001 exists
	f := newAPIFixture(t)
	f.addInfluencer(t, "Ana", "ANA10")
	body := SaleRequest{Coupon: "ANA10", OrderNumber: "#1001", Date: "05/03/2026", Points: "10"}
	require.Equal(t, http.StatusCreated, f.asMaster(t, http.MethodPost, "/api/sales", body).Code)

	// WHEN: creating it again, padded
	body.OrderNumber = " #1001 "
	rec := f.asMaster(t, http.MethodPost, "/api/sales", body)

	// THEN
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSale_UnknownCouponNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.asMaster(t, http.MethodPost, "/api/sales",
		SaleRequest{Coupon: "GHOST", OrderNumber: "#1", Date: "05/03/2026", Points: "10"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSale_BadDateRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.addInfluencer(t, "Ana", "ANA10")

	rec := f.asMaster(t, http.MethodPost, "/api/sales",
		SaleRequest{Coupon: "ANA10", OrderNumber: "#1", Date: "31/04/2026", Points: "10"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SKU RULES
// =============================================================================

func TestUpsertSkuRule_LooseActiveFlag(t *testing.T) {
	// GIVEN / WHEN: a rule deactivated with a Portuguese synonym
	f := newAPIFixture(t)
	rec := f.asMaster(t, http.MethodPut, "/api/sku-rules", map[string]any{
		"sku": "GEL-200", "points_per_unit": 10, "active": "nao",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN
	rule := decodeBody[SkuRuleDTO](t, rec)
	assert.False(t, rule.Active)

	// AND: absent means active
	rec = f.asMaster(t, http.MethodPut, "/api/sku-rules", map[string]any{
		"sku": "KIT-GLOW", "points_per_unit": 25,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SkuRuleDTO](t, rec).Active)
}
