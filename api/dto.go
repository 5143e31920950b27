/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the API contract, decoupled from the domain
  types. This is also the ONLY place where payload aliases are legal:
  clients send scriptId / script_id / contentScriptId interchangeably
  and the adapter collapses them to one canonical field before anything
  reaches the engine.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/hidrapink/cycle-engine/cycle"
	"github.com/hidrapink/cycle-engine/points"
	"github.com/hidrapink/cycle-engine/sales"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CycleDTO represents a monthly cycle in API responses.
type CycleDTO struct {
	ID        int64  `json:"id"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

// PlanDTO represents a delivery plan in API responses.
type PlanDTO struct {
	ID            int64  `json:"id"`
	CycleID       int64  `json:"cycle_id"`
	InfluencerID  int64  `json:"influencer_id"`
	ScheduledDate string `json:"scheduled_date"`
	ScriptID      *int64 `json:"script_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Status        string `json:"status"`
}

// InfluencerDTO represents an influencer in API responses.
type InfluencerDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Instagram string `json:"instagram,omitempty"`
	Coupon    string `json:"coupon"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ScriptDTO represents a content script in API responses.
type ScriptDTO struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SaleDTO represents a sale record in API responses.
type SaleDTO struct {
	ID           int64            `json:"id"`
	InfluencerID int64            `json:"influencer_id"`
	OrderNumber  string           `json:"order_number,omitempty"`
	Coupon       string           `json:"coupon,omitempty"`
	Date         string           `json:"date"`
	Points       int64            `json:"points"`
	Value        string           `json:"value"`
	Items        []cycle.SaleItem `json:"items,omitempty"`
}

// SkuRuleDTO represents a SKU point rule in API responses.
type SkuRuleDTO struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Description   string `json:"description,omitempty"`
	PointsPerUnit string `json:"points_per_unit"`
	Active        bool   `json:"active"`
}

// SnapshotDTO represents a frozen commission snapshot.
type SnapshotDTO struct {
	CycleID             int64                    `json:"cycle_id"`
	InfluencerID        int64                    `json:"influencer_id"`
	ValidatedDays       int                      `json:"validated_days"`
	Multiplier          string                   `json:"multiplier"`
	Label               string                   `json:"label"`
	BasePoints          int64                    `json:"base_points"`
	TotalPoints         int64                    `json:"total_points"`
	DeliveriesPlanned   int                      `json:"deliveries_planned"`
	DeliveriesCompleted int                      `json:"deliveries_completed"`
	ValidationSummary   map[cycle.PlanStatus]int `json:"validation_summary,omitempty"`
}

// PlanBoardDTO is the influencer plan view: cycle, plans and the
// scripts available for scheduling.
type PlanBoardDTO struct {
	Cycle            CycleDTO    `json:"cycle"`
	Plans            []PlanDTO   `json:"plans"`
	AvailableScripts []ScriptDTO `json:"available_scripts"`
}

// ProgressDTO summarizes delivery progress inside a cycle.
type ProgressDTO struct {
	Planned   int `json:"planned"`
	Posted    int `json:"posted"`
	Validated int `json:"validated"`
	Missed    int `json:"missed"`
}

// DashboardDTO is the read-only influencer aggregate.
type DashboardDTO struct {
	Cycle      CycleDTO       `json:"cycle"`
	Plans      []PlanDTO      `json:"plans"`
	Progress   ProgressDTO    `json:"progress"`
	Commission points.Summary `json:"commission"`
}

// CloseCycleDTO is the result of closing a cycle.
type CloseCycleDTO struct {
	Cycle      CycleDTO      `json:"cycle"`
	Summaries  []SnapshotDTO `json:"per_influencer_summaries"`
	PlansSwept int64         `json:"plans_swept"`
}

// ImportCommitDTO reports what a confirmed import inserted.
type ImportCommitDTO struct {
	Inserted int           `json:"inserted"`
	Ignored  int           `json:"ignored"`
	Rows     []sales.Row   `json:"rows"`
	Summary  sales.Summary `json:"summary"`
	Records  []SaleDTO     `json:"records"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Details  string          `json:"details,omitempty"`
	Analysis *sales.Analysis `json:"analysis,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateInfluencerRequest registers an influencer.
type CreateInfluencerRequest struct {
	Name      string `json:"name"`
	Instagram string `json:"instagram"`
	Coupon    string `json:"coupon"`
}

// CreateScriptRequest registers a content script.
type CreateScriptRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpsertSkuRuleRequest creates or updates a SKU point rule. Active
// accepts loose boolean synonyms ("sim", "1", true); absent means true.
type UpsertSkuRuleRequest struct {
	SKU           string          `json:"sku"`
	Description   string          `json:"description"`
	PointsPerUnit json.Number     `json:"points_per_unit"`
	Active        json.RawMessage `json:"active"`
}

// SaleRequest is the single-sale create/update body.
type SaleRequest struct {
	Coupon      string      `json:"coupon"`
	OrderNumber string      `json:"order_number"`
	Date        string      `json:"date"`
	Points      json.Number `json:"points"`
}

// ImportRequest carries the raw pasted sales text. "data" is a legacy
// alias for "text".
type ImportRequest struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

func (r ImportRequest) raw() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Data
}

// UpsertPlanRequest is the batch plan mutation body.
type UpsertPlanRequest struct {
	CycleID          *int64             `json:"cycle_id"`
	Entries          []PlanEntryRequest `json:"entries"`
	RemovedPlanIDs   []int64            `json:"removed_plan_ids"`
	RemovedScriptIDs []int64            `json:"removed_script_ids"`
}

// PlanEntryRequest is one entry in a batch plan upsert. The script id
// arrives under several historical names; scriptID() collapses them.
type PlanEntryRequest struct {
	PlanID          *int64          `json:"plan_id"`
	PlanIDAlt       *int64          `json:"planId"`
	Date            string          `json:"date"`
	ScriptID        *int64          `json:"script_id"`
	ScriptIDAlt     *int64          `json:"scriptId"`
	ContentScriptID *int64          `json:"contentScriptId"`
	Notes           string          `json:"notes"`
	Append          json.RawMessage `json:"append"`
}

func (e PlanEntryRequest) planID() *int64 {
	if e.PlanID != nil {
		return e.PlanID
	}
	return e.PlanIDAlt
}

func (e PlanEntryRequest) scriptID() *int64 {
	switch {
	case e.ScriptID != nil:
		return e.ScriptID
	case e.ScriptIDAlt != nil:
		return e.ScriptIDAlt
	default:
		return e.ContentScriptID
	}
}

// appendFlag reads the loose boolean. Only an explicit true appends;
// false and unrecognized both keep the default move semantics.
func (e PlanEntryRequest) appendFlag() bool {
	return parseLooseBool(e.Append) == sales.BoolTrue
}

// parseLooseBool accepts JSON booleans, numbers and string synonyms.
func parseLooseBool(raw json.RawMessage) sales.BoolValue {
	if len(raw) == 0 {
		return sales.BoolUnknown
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return sales.BoolTrue
		}
		return sales.BoolFalse
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return sales.ParseBool(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return sales.ParseBool(n.String())
	}
	return sales.BoolUnknown
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCycleDTO(c *cycle.MonthlyCycle) CycleDTO {
	dto := CycleDTO{
		ID:        c.ID,
		Year:      c.Year,
		Month:     int(c.Month),
		Status:    string(c.Status),
		StartDate: c.StartDate.Format(cycle.DateOnly),
	}
	if c.ClosedAt != nil {
		dto.ClosedAt = c.ClosedAt.Format(time.RFC3339)
	}
	return dto
}

func toPlanDTO(p *cycle.DeliveryPlan) PlanDTO {
	return PlanDTO{
		ID:            p.ID,
		CycleID:       p.CycleID,
		InfluencerID:  p.InfluencerID,
		ScheduledDate: p.ScheduledDate.Format(cycle.DateOnly),
		ScriptID:      p.ScriptID,
		Notes:         p.Notes,
		Status:        string(p.Status),
	}
}

func toPlanDTOs(plans []cycle.DeliveryPlan) []PlanDTO {
	dtos := make([]PlanDTO, len(plans))
	for i := range plans {
		dtos[i] = toPlanDTO(&plans[i])
	}
	return dtos
}

func toInfluencerDTO(inf *cycle.Influencer) InfluencerDTO {
	return InfluencerDTO{
		ID:        inf.ID,
		Name:      inf.Name,
		Instagram: inf.Instagram,
		Coupon:    inf.Coupon,
		CreatedAt: inf.CreatedAt.Format(time.RFC3339),
	}
}

func toScriptDTO(sc *cycle.Script) ScriptDTO {
	return ScriptDTO{ID: sc.ID, Title: sc.Title, Description: sc.Description}
}

func toScriptDTOs(scripts []cycle.Script) []ScriptDTO {
	dtos := make([]ScriptDTO, len(scripts))
	for i := range scripts {
		dtos[i] = toScriptDTO(&scripts[i])
	}
	return dtos
}

func toSaleDTO(s *cycle.SaleRecord) SaleDTO {
	return SaleDTO{
		ID:           s.ID,
		InfluencerID: s.InfluencerID,
		OrderNumber:  s.OrderNumber,
		Coupon:       s.Coupon,
		Date:         s.Date.Format(cycle.DateOnly),
		Points:       s.Points,
		Value:        s.Value.StringFixed(2),
		Items:        s.Items,
	}
}

func toSkuRuleDTO(rule *cycle.SkuPointRule) SkuRuleDTO {
	return SkuRuleDTO{
		ID:            rule.ID,
		SKU:           rule.SKU,
		Description:   rule.Description,
		PointsPerUnit: rule.PointsPerUnit.String(),
		Active:        rule.Active,
	}
}

func toSnapshotDTO(snap *cycle.CommissionSnapshot) SnapshotDTO {
	return SnapshotDTO{
		CycleID:             snap.CycleID,
		InfluencerID:        snap.InfluencerID,
		ValidatedDays:       snap.ValidatedDays,
		Multiplier:          snap.Multiplier.String(),
		Label:               snap.Label,
		BasePoints:          snap.BasePoints,
		TotalPoints:         snap.TotalPoints,
		DeliveriesPlanned:   snap.DeliveriesPlanned,
		DeliveriesCompleted: snap.DeliveriesCompleted,
		ValidationSummary:   snap.ValidationSummary,
	}
}
