/*
handlers.go - HTTP API handlers for the cycle engine

PURPOSE:
  Exposes the monthly cycle and commission engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic in cycle/, points/ and sales/.

ENDPOINTS:
  Cycles:
    POST   /api/cycles/current                   Get-or-create the current cycle
    GET    /api/cycles                           List cycles (master)
    POST   /api/cycles/{id}/close                Close and snapshot (master)
    GET    /api/cycles/{id}/pending-validations  Posted plans awaiting review (master)

  Plans:
    GET    /api/influencers/{id}/plan            Cycle + plans + available scripts
    PUT    /api/influencers/{id}/plan            Batch upsert/remove plan entries
    GET    /api/influencers/{id}/dashboard       Read-only progress + commission
    POST   /api/plans/{id}/post                  Mark delivery published
    POST   /api/plans/{id}/approve               Validate delivery (master)
    POST   /api/plans/{id}/reject                Reset to scheduled (master)

  Sales:
    GET    /api/sales                            List sales (master)
    POST   /api/sales                            Create one sale (master)
    PUT    /api/sales/{id}                       Update one sale (master)
    DELETE /api/sales/{id}                       Delete one sale (master)
    POST   /api/sales/import/preview             Analyze bulk input (master)
    POST   /api/sales/import/confirm             Commit bulk input (master)

  Registries:
    GET/POST /api/influencers, GET /api/influencers/{id}
    GET/POST /api/scripts
    GET/PUT  /api/sku-rules

ERROR HANDLING:
  Domain errors map to HTTP status via the cycle.Is* helpers:
  - 400: validation errors
  - 403: permission errors
  - 404: unknown ids
  - 409: conflicts (duplicate order, already validated, closed cycle)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - principal.go: Role extraction
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hidrapink/cycle-engine/cycle"
	"github.com/hidrapink/cycle-engine/points"
	"github.com/hidrapink/cycle-engine/sales"
	"github.com/hidrapink/cycle-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Manager    *cycle.Manager
	Scheduler  *cycle.Scheduler
	Reconciler *sales.Reconciler
	Calculator *points.Calculator
	Principal  PrincipalFunc
	Logger     *slog.Logger
}

// NewHandler wires a handler around the store. A nil ledger uses the
// default point value; a nil logger uses slog's default.
func NewHandler(store *sqlite.Store, ledger *points.Ledger, logger *slog.Logger) *Handler {
	if ledger == nil {
		ledger = points.NewDefaultLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	calc := points.NewCalculator(nil, ledger)
	return &Handler{
		Store:      store,
		Manager:    cycle.NewManager(store, calc, logger),
		Scheduler:  cycle.NewScheduler(store, logger),
		Reconciler: sales.NewReconciler(store, ledger, logger),
		Calculator: calc,
		Principal:  HeaderPrincipal,
		Logger:     logger,
	}
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// GetCurrentCycle returns the open cycle for the current month,
// creating or re-opening it if needed.
func (h *Handler) GetCurrentCycle(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	c, err := h.Manager.EnsureCurrentCycle(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to resolve current cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(c))
}

// ListCycles returns every cycle, newest first.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	cycles, err := h.Store.ListCycles(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list cycles", err)
		return
	}
	dtos := make([]CycleDTO, len(cycles))
	for i := range cycles {
		dtos[i] = toCycleDTO(&cycles[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CloseCycle snapshots commissions and closes the cycle.
func (h *Handler) CloseCycle(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle id", err)
		return
	}

	result, err := h.Manager.CloseCycle(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to close cycle", err)
		return
	}
	cyclesClosed.Inc()

	dto := CloseCycleDTO{
		Cycle:      toCycleDTO(result.Cycle),
		Summaries:  make([]SnapshotDTO, len(result.Summaries)),
		PlansSwept: result.Swept,
	}
	for i := range result.Summaries {
		dto.Summaries[i] = toSnapshotDTO(&result.Summaries[i])
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListPendingValidations returns the cycle's posted plans.
func (h *Handler) ListPendingValidations(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle id", err)
		return
	}

	plans, err := h.Scheduler.ListPendingValidations(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list pending validations", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTOs(plans))
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// GetInfluencerPlan returns the influencer's plan board for a cycle.
func (h *Handler) GetInfluencerPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	influencerID, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid influencer id", err)
		return
	}
	if !p.canActFor(influencerID) {
		writeError(w, http.StatusForbidden, "Cannot access another influencer's plan", nil)
		return
	}

	c, err := h.resolveCycle(r)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve cycle", err)
		return
	}
	plans, err := h.Store.ListPlans(r.Context(), c.ID, influencerID)
	if err != nil {
		h.writeDomainError(w, "Failed to list plans", err)
		return
	}
	scripts, err := h.Store.ListScripts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list scripts", err)
		return
	}

	writeJSON(w, http.StatusOK, PlanBoardDTO{
		Cycle:            toCycleDTO(c),
		Plans:            toPlanDTOs(plans),
		AvailableScripts: toScriptDTOs(scripts),
	})
}

// UpsertInfluencerPlan applies a batch of plan changes.
func (h *Handler) UpsertInfluencerPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	influencerID, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid influencer id", err)
		return
	}
	if !p.canActFor(influencerID) {
		writeError(w, http.StatusForbidden, "Cannot modify another influencer's plan", nil)
		return
	}

	var req UpsertPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var c *cycle.MonthlyCycle
	if req.CycleID != nil {
		c, err = h.Store.GetCycle(r.Context(), *req.CycleID)
	} else {
		c, err = h.Manager.EnsureCurrentCycle(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, "Failed to resolve cycle", err)
		return
	}

	entries := make([]cycle.PlanEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		date, err := sales.ParseDate(e.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid plan date", err)
			return
		}
		entries = append(entries, cycle.PlanEntry{
			PlanID:   e.planID(),
			Date:     date,
			ScriptID: e.scriptID(),
			Notes:    e.Notes,
			Append:   e.appendFlag(),
		})
	}

	plans, err := h.Scheduler.UpsertPlanEntries(r.Context(), c.ID, influencerID,
		entries, req.RemovedPlanIDs, req.RemovedScriptIDs)
	if err != nil {
		h.writeDomainError(w, "Failed to update plan", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cycle": toCycleDTO(c),
		"plans": toPlanDTOs(plans),
	})
}

// GetInfluencerDashboard returns cycle progress plus the live
// commission projection.
func (h *Handler) GetInfluencerDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	influencerID, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid influencer id", err)
		return
	}
	if !p.canActFor(influencerID) {
		writeError(w, http.StatusForbidden, "Cannot access another influencer's dashboard", nil)
		return
	}
	if _, err := h.Store.GetInfluencer(r.Context(), influencerID); err != nil {
		h.writeDomainError(w, "Failed to load influencer", err)
		return
	}

	c, err := h.Manager.EnsureCurrentCycle(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to resolve current cycle", err)
		return
	}
	plans, err := h.Store.ListPlans(r.Context(), c.ID, influencerID)
	if err != nil {
		h.writeDomainError(w, "Failed to list plans", err)
		return
	}

	var progress ProgressDTO
	progress.Planned = len(plans)
	for _, plan := range plans {
		switch plan.Status {
		case cycle.PlanPosted:
			progress.Posted++
		case cycle.PlanValidated:
			progress.Validated++
		case cycle.PlanMissed:
			progress.Missed++
		}
	}

	basePoints, err := h.Store.SumSalePoints(r.Context(), influencerID)
	if err != nil {
		h.writeDomainError(w, "Failed to sum sale points", err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardDTO{
		Cycle:      toCycleDTO(c),
		Plans:      toPlanDTOs(plans),
		Progress:   progress,
		Commission: h.Calculator.Summarize(progress.Validated, basePoints),
	})
}

// PostPlan marks a delivery as published.
func (h *Handler) PostPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan id", err)
		return
	}
	plan, err := h.Store.GetPlan(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load plan", err)
		return
	}
	if !p.canActFor(plan.InfluencerID) {
		writeError(w, http.StatusForbidden, "Cannot post another influencer's plan", nil)
		return
	}

	plan, err = h.Scheduler.Post(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to post plan", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// ApprovePlan validates a delivery. Approving a plan that is already
// validated is a conflict, not a silent success.
func (h *Handler) ApprovePlan(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan id", err)
		return
	}

	plan, err := h.Scheduler.Validate(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to approve plan", err)
		return
	}
	plansValidated.Inc()
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// RejectPlan resets a plan to scheduled from any state.
func (h *Handler) RejectPlan(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan id", err)
		return
	}

	plan, err := h.Scheduler.Reject(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to reject plan", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

// ListSales returns sales, optionally filtered by influencer_id.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	var influencerID int64
	if raw := r.URL.Query().Get("influencer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid influencer_id filter", err)
			return
		}
		influencerID = id
	}

	records, err := h.Store.ListSales(r.Context(), influencerID)
	if err != nil {
		h.writeDomainError(w, "Failed to list sales", err)
		return
	}
	dtos := make([]SaleDTO, len(records))
	for i := range records {
		dtos[i] = toSaleDTO(&records[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSale registers one sale with the same coupon resolution and
// order uniqueness checks as the bulk path.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	record, ok := h.saleFromRequest(w, r)
	if !ok {
		return
	}

	created, err := h.Store.CreateSale(r.Context(), record)
	if err != nil {
		h.writeDomainError(w, "Failed to create sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleDTO(created))
}

// UpdateSale rewrites one sale.
func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sale id", err)
		return
	}
	record, ok := h.saleFromRequest(w, r)
	if !ok {
		return
	}
	record.ID = id

	if err := h.Store.UpdateSale(r.Context(), record); err != nil {
		h.writeDomainError(w, "Failed to update sale", err)
		return
	}
	updated, err := h.Store.GetSale(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load sale", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(updated))
}

// DeleteSale removes one sale.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sale id", err)
		return
	}

	if err := h.Store.DeleteSale(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete sale", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// saleFromRequest builds a SaleRecord from the request body, resolving
// the coupon and validating the date exactly like the importer does.
func (h *Handler) saleFromRequest(w http.ResponseWriter, r *http.Request) (*cycle.SaleRecord, bool) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}

	inf, err := h.Store.GetInfluencerByCoupon(r.Context(), req.Coupon)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve coupon", err)
		return nil, false
	}
	date, err := sales.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sale date", err)
		return nil, false
	}
	pts, err := req.Points.Int64()
	if err != nil || pts < 0 {
		writeError(w, http.StatusBadRequest, "Points must be a non-negative integer", err)
		return nil, false
	}

	return &cycle.SaleRecord{
		InfluencerID: inf.ID,
		OrderNumber:  req.OrderNumber,
		Coupon:       inf.Coupon,
		Date:         date,
		Points:       pts,
		Value:        h.Calculator.Ledger.PointsToValue(pts),
	}, true
}

// PreviewSalesImport analyzes a bulk batch without writing anything.
func (h *Handler) PreviewSalesImport(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	analysis, err := h.Reconciler.Preview(r.Context(), req.raw())
	if err != nil {
		h.writeDomainError(w, "Failed to analyze sales data", err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// ConfirmSalesImport commits a bulk batch: inserts the valid rows,
// reports the rest as ignored. Zero insertable rows is a conflict
// carrying the full analysis.
func (h *Handler) ConfirmSalesImport(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Reconciler.Commit(r.Context(), req.raw())
	if err != nil {
		var noRows *sales.NoImportableRowsError
		if errors.As(err, &noRows) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:    "No importable rows",
				Details:  err.Error(),
				Analysis: noRows.Analysis,
			})
			return
		}
		h.writeDomainError(w, "Failed to commit sales import", err)
		return
	}
	salesImported.WithLabelValues("inserted").Add(float64(result.Inserted))
	salesImported.WithLabelValues("ignored").Add(float64(result.Ignored))

	dto := ImportCommitDTO{
		Inserted: result.Inserted,
		Ignored:  result.Ignored,
		Rows:     result.Analysis.Rows,
		Summary:  result.Summary,
		Records:  make([]SaleDTO, len(result.Records)),
	}
	for i := range result.Records {
		dto.Records[i] = toSaleDTO(&result.Records[i])
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// REGISTRY HANDLERS
// =============================================================================

// ListInfluencers returns all influencers.
func (h *Handler) ListInfluencers(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	influencers, err := h.Store.ListInfluencers(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list influencers", err)
		return
	}
	dtos := make([]InfluencerDTO, len(influencers))
	for i := range influencers {
		dtos[i] = toInfluencerDTO(&influencers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInfluencer registers an influencer with a unique coupon.
func (h *Handler) CreateInfluencer(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	var req CreateInfluencerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	created, err := h.Store.CreateInfluencer(r.Context(), &cycle.Influencer{
		Name:      req.Name,
		Instagram: req.Instagram,
		Coupon:    req.Coupon,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create influencer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInfluencerDTO(created))
}

// GetInfluencer returns one influencer.
func (h *Handler) GetInfluencer(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid influencer id", err)
		return
	}
	if !p.canActFor(id) {
		writeError(w, http.StatusForbidden, "Cannot access another influencer's record", nil)
		return
	}

	inf, err := h.Store.GetInfluencer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get influencer", err)
		return
	}
	writeJSON(w, http.StatusOK, toInfluencerDTO(inf))
}

// ListScripts returns all content scripts.
func (h *Handler) ListScripts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	scripts, err := h.Store.ListScripts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list scripts", err)
		return
	}
	writeJSON(w, http.StatusOK, toScriptDTOs(scripts))
}

// GetScript returns a single content script.
func (h *Handler) GetScript(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid script ID", err)
		return
	}
	script, err := h.Store.GetScript(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get script", err)
		return
	}
	writeJSON(w, http.StatusOK, toScriptDTO(script))
}

// CreateScript registers a content script.
func (h *Handler) CreateScript(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	var req CreateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.Store.CreateScript(r.Context(), &cycle.Script{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create script", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScriptDTO(created))
}

// ListSkuRules returns every SKU point rule.
func (h *Handler) ListSkuRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	rules, err := h.Store.ListSkuRules(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list SKU rules", err)
		return
	}
	dtos := make([]SkuRuleDTO, len(rules))
	for i := range rules {
		dtos[i] = toSkuRuleDTO(&rules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertSkuRule creates or updates the rule for one SKU.
func (h *Handler) UpsertSkuRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireMaster(w, r) {
		return
	}
	var req UpsertSkuRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	perUnit, err := decimalFromNumber(req.PointsPerUnit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid points_per_unit", err)
		return
	}

	// Absent means active; only an explicit false deactivates.
	active := parseLooseBool(req.Active) != sales.BoolFalse

	rule, err := h.Store.UpsertSkuRule(r.Context(), &cycle.SkuPointRule{
		SKU:           req.SKU,
		Description:   req.Description,
		PointsPerUnit: perUnit,
		Active:        active,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to upsert SKU rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toSkuRuleDTO(rule))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, err := h.Principal(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "Not authorized", err)
		return Principal{}, false
	}
	return p, true
}

func (h *Handler) requireMaster(w http.ResponseWriter, r *http.Request) bool {
	p, ok := h.principal(w, r)
	if !ok {
		return false
	}
	if p.Role != RoleMaster {
		writeError(w, http.StatusForbidden, "Master role required", nil)
		return false
	}
	return true
}

// resolveCycle returns the cycle named by the cycle_id query parameter
// or, absent one, the current cycle.
func (h *Handler) resolveCycle(r *http.Request) (*cycle.MonthlyCycle, error) {
	if raw := r.URL.Query().Get("cycle_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &cycle.ValidationError{Field: "cycle_id", Message: "must be an integer"}
		}
		return h.Store.GetCycle(r.Context(), id)
	}
	return h.Manager.EnsureCurrentCycle(r.Context())
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

// writeDomainError maps a domain error to its HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case cycle.IsValidation(err):
		status = http.StatusBadRequest
	case cycle.IsPermission(err):
		status = http.StatusForbidden
	case cycle.IsNotFound(err):
		status = http.StatusNotFound
	case cycle.IsConflict(err):
		status = http.StatusConflict
	default:
		h.Logger.Error(message, "error", err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
