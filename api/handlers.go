/*
handlers.go - HTTP API handlers for the premium and commission engines

PURPOSE:
  Exposes pricing and commission computation via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Pricing rules:
    GET    /api/pricing-rules                        List rules
    POST   /api/pricing-rules                        Create rule from JSON
    GET    /api/pricing-rules/{id}                   Get rule summary
    POST   /api/pricing-rules/{id}/price             Compute a price
    GET    /api/pricing-rules/{id}/frequency-days    Days to next period

  Plans & agents:
    GET    /api/plans, POST /api/plans
    GET    /api/agents, POST /api/agents
    GET    /api/agents/{id}/commissions              Ledger rows
    GET    /api/agents/{id}/prepayments              Prepayment balances
    POST   /api/agents/{id}/invoice                  Recognise due rows

  Contracts & invoices:
    POST   /api/contracts                            Save contract
    POST   /api/contracts/{id}/activate              Create prepayments
    POST   /api/contracts/{id}/rebill                Recompute prepayments
    POST   /api/contracts/{id}/terminate             Terminate + adjust
    POST   /api/invoices                             Save + generate commissions
    POST   /api/invoices/{id}/cancel                 Reverse commissions

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (factory documents or validator tags)
  3. Call domain logic (pricing.Rule, commission.Engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, formula errors
  - 404: Resource not found
  - 409: Invoiced rows, duplicate reversals, regenerated invoices
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/factory"
	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/logger"
	"github.com/warp/premium-engine/metrics"
	"github.com/warp/premium-engine/pricing"
)

const maxBodyBytes = 1 << 20

// Store is the persistence the handlers need: the commission ledger,
// configuration documents, and a full wipe for scenarios.
type Store interface {
	generic.TxStore
	generic.DocumentStore
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Repo    *factory.Repository
	Engine  *commission.Engine
	Metrics *metrics.Metrics
	Log     *logger.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler over store. Nil m or log are replaced by
// fresh instances.
func NewHandler(store Store, repo *factory.Repository, engine *commission.Engine, m *metrics.Metrics, log *logger.Logger) *Handler {
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		Store:    store,
		Repo:     repo,
		Engine:   engine,
		Metrics:  m,
		Log:      log.OrNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// PRICING RULE ENDPOINTS
// =============================================================================

func (h *Handler) ListPricingRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Repo.Rules(r.Context())
	if err != nil {
		h.fail(w, "failed to list pricing rules", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(rules, func(rule *pricing.Rule, _ int) PricingRuleDTO { return toRuleDTO(rule) }))
}

func (h *Handler) CreatePricingRule(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, "invalid request body", err)
		return
	}
	rule, err := h.Repo.SaveRule(r.Context(), body)
	if err != nil {
		h.fail(w, "invalid pricing rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

func (h *Handler) GetPricingRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Repo.Rule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "pricing rule not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rule))
}

// ComputePrice prices the rule. Calculation problems come back as
// messages with a 200: pricing never fails hard at run time.
func (h *Handler) ComputePrice(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Repo.Rule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "pricing rule not found", err)
		return
	}
	var req PriceRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.fail(w, "invalid price request", err)
		return
	}

	args := &pricing.Args{
		Contract:   req.Contract,
		Option:     req.Option,
		Subscriber: req.Subscriber,
		Values:     req.Values,
	}
	if args.Values == nil {
		args.Values = map[string]any{}
	}
	if req.Date != "" {
		date, _ := generic.ParseDate(req.Date)
		args.Date = &date
	}

	var line *pricing.ResultLine
	var msgs []pricing.Message
	scope := string(pricing.RatedGlobal)
	if req.Scope == string(pricing.RatedSubItem) {
		scope = req.Scope
		line, msgs = rule.GiveMeSubElemPrice(args)
	} else {
		line, msgs = rule.GiveMePrice(args)
	}
	h.Metrics.PriceComputed(scope, len(msgs))
	if len(msgs) > 0 {
		h.Log.Debugw("price computed with messages", "rule", rule.ID, "messages", pricing.Messages(msgs))
	}
	writeJSON(w, http.StatusOK, toPriceResponse(line, msgs))
}

func (h *Handler) GetFrequencyDays(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Repo.Rule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "pricing rule not found", err)
		return
	}
	args := &pricing.Args{Values: map[string]any{}}
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, err := generic.ParseDate(dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format (use YYYY-MM-DD)", err)
			return
		}
		args.Date = &date
	}

	days, msgs := rule.GiveMeFrequencyDays(args)
	resp := FrequencyDaysResponse{Frequency: string(rule.GiveMeFrequency()), Messages: toMessageDTOs(msgs)}
	if len(msgs) == 0 {
		resp.Days = &days
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PLAN & AGENT ENDPOINTS
// =============================================================================

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Repo.Plans(r.Context())
	if err != nil {
		h.fail(w, "failed to list plans", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(plans, func(p *commission.Plan, _ int) PlanDTO { return toPlanDTO(p) }))
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, "invalid request body", err)
		return
	}
	plan, err := h.Repo.SavePlan(r.Context(), body)
	if err != nil {
		h.fail(w, "invalid plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(plan))
}

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Repo.Agents(r.Context())
	if err != nil {
		h.fail(w, "failed to list agents", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(agents, func(a *commission.Agent, _ int) AgentDTO { return toAgentDTO(a) }))
}

func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, "invalid request body", err)
		return
	}
	agent, err := h.Repo.SaveAgent(r.Context(), body)
	if err != nil {
		h.fail(w, "invalid agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentDTO(agent))
}

// GetAgentCommissions lists the agent's rows. Optional query filters:
// option, until (YYYY-MM-DD), prepayment (true/false), uninvoiced.
func (h *Handler) GetAgentCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent, err := h.Repo.Agent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "agent not found", err)
		return
	}

	q := r.URL.Query()
	filter := generic.Filter{Agents: []generic.AgentID{agent.ID}}
	if option := q.Get("option"); option != "" {
		filter.Options = []generic.OptionID{generic.OptionID(option)}
	}
	if until := q.Get("until"); until != "" {
		date, err := generic.ParseDate(until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until date (use YYYY-MM-DD)", err)
			return
		}
		filter.Until = &date
	}
	switch q.Get("prepayment") {
	case "true":
		filter.IsPrepayment = lo.ToPtr(true)
	case "false":
		filter.IsPrepayment = lo.ToPtr(false)
	}
	if q.Get("uninvoiced") == "true" {
		filter.InvoiceLine = lo.ToPtr("")
	}

	rows, err := h.Engine.Commissions(ctx, filter)
	if err != nil {
		h.fail(w, "failed to load commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionsResponse(rows))
}

// GetAgentPrepayments returns paid and outstanding prepayment per option
// of the agent.
func (h *Handler) GetAgentPrepayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent, err := h.Repo.Agent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "agent not found", err)
		return
	}

	rows, err := h.Engine.Commissions(ctx, generic.Filter{
		Agents:       []generic.AgentID{agent.ID},
		IsPrepayment: lo.ToPtr(true),
	})
	if err != nil {
		h.fail(w, "failed to load prepayments", err)
		return
	}
	keys := lo.Uniq(lo.Map(rows, func(c generic.Commission, _ int) generic.AgentOption { return c.Key() }))

	ledger := generic.NewLedger(h.Store)
	paid, err := ledger.PaidPrepayments(ctx, keys)
	if err != nil {
		h.fail(w, "failed to compute paid prepayments", err)
		return
	}
	outstanding, err := ledger.OutstandingPrepayment(ctx, keys)
	if err != nil {
		h.fail(w, "failed to compute outstanding prepayments", err)
		return
	}
	outstandingPaid, err := ledger.OutstandingPaidPrepayment(ctx, keys)
	if err != nil {
		h.fail(w, "failed to compute outstanding paid prepayments", err)
		return
	}

	result := lo.Map(keys, func(k generic.AgentOption, _ int) PrepaymentDTO {
		return PrepaymentDTO{
			Agent:           string(k.Agent),
			Option:          string(k.Option),
			Paid:            paid[k],
			Outstanding:     outstanding[k],
			OutstandingPaid: outstandingPaid[k],
		}
	})
	writeJSON(w, http.StatusOK, result)
}

// InvoiceAgent recognises the agent's due rows on a broker/insurer
// invoice line. Until defaults to today.
func (h *Handler) InvoiceAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent, err := h.Repo.Agent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "agent not found", err)
		return
	}
	var req InvoiceAgentRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.fail(w, "invalid invoice request", err)
		return
	}
	until := generic.Today()
	if req.Until != "" {
		until, _ = generic.ParseDate(req.Until)
	}

	start := time.Now()
	rows, err := h.Engine.InvoiceAgentCommissions(ctx, agent.ID, until, req.InvoiceLine)
	h.Metrics.Observe("invoice_agent", start, len(rows), err)
	if err != nil {
		h.fail(w, "failed to invoice agent commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionsResponse(rows))
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, "invalid request body", err)
		return
	}
	contract, err := h.Repo.SaveContract(r.Context(), body)
	if err != nil {
		h.fail(w, "invalid contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(contract))
}

// ActivateContract marks the contract active and creates its
// prepayment commissions.
func (h *Handler) ActivateContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contract, err := h.Repo.UpdateContract(ctx, chi.URLParam(r, "id"), func(cj *factory.ContractJSON) {
		cj.Status = string(commission.StatusActive)
	})
	if err != nil {
		h.fail(w, "failed to activate contract", err)
		return
	}
	h.runEngine(w, "activate", func() ([]generic.Commission, error) {
		return h.Engine.CreatePrepaymentCommissions(ctx, contract, false)
	})
}

func (h *Handler) RebillContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contract, err := h.Repo.Contract(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "contract not found", err)
		return
	}
	h.runEngine(w, "rebill", func() ([]generic.Commission, error) {
		return h.Engine.Rebill(ctx, contract)
	})
}

// TerminateContract records the termination reason then rebills, which
// gives back unredeemed paid prepayment.
func (h *Handler) TerminateContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TerminateRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.fail(w, "invalid termination request", err)
		return
	}
	contract, err := h.Repo.UpdateContract(ctx, chi.URLParam(r, "id"), func(cj *factory.ContractJSON) {
		cj.Status = string(commission.StatusTerminated)
		cj.TerminationReason = req.Reason
	})
	if err != nil {
		h.fail(w, "failed to terminate contract", err)
		return
	}
	h.runEngine(w, "terminate", func() ([]generic.Commission, error) {
		return h.Engine.Rebill(ctx, contract)
	})
}

// =============================================================================
// INVOICE ENDPOINTS
// =============================================================================

// CreateInvoice saves the invoice and generates its commissions,
// redeeming outstanding prepayment.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		h.fail(w, "invalid request body", err)
		return
	}
	invoice, err := h.Repo.SaveInvoice(ctx, body)
	if err != nil {
		h.fail(w, "invalid invoice", err)
		return
	}

	start := time.Now()
	rows, err := h.Engine.GenerateInvoiceCommissions(ctx, invoice)
	h.Metrics.Observe("generate_invoice", start, len(rows), err)
	if err != nil {
		h.fail(w, "failed to generate invoice commissions", err)
		return
	}
	for _, c := range rows {
		if c.RedeemedPrepayment.Valid {
			h.Metrics.Redeemed(c.RedeemedPrepayment.Decimal)
		}
	}
	writeJSON(w, http.StatusCreated, toCommissionsResponse(rows))
}

func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invoice, err := h.Repo.Invoice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "invoice not found", err)
		return
	}
	h.runEngine(w, "cancel_invoice", func() ([]generic.Commission, error) {
		return h.Engine.CancelInvoice(ctx, invoice)
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) runEngine(w http.ResponseWriter, operation string, fn func() ([]generic.Commission, error)) {
	start := time.Now()
	rows, err := fn()
	h.Metrics.Observe(operation, start, len(rows), err)
	if err != nil {
		h.fail(w, operation+" failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionsResponse(rows))
}

// decodeRequest reads a JSON body into req and validates its tags.
// An empty body leaves req at its zero value.
func (h *Handler) decodeRequest(r *http.Request, req any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			return errors.Mark(errors.Wrap(err, "malformed JSON"), generic.ErrValidation)
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return errors.Mark(err, generic.ErrValidation)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read body"), generic.ErrValidation)
	}
	return body, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status its class maps to. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Errorw(message, "error", err)
	}
	resp := ErrorResponse{Error: message, Details: err.Error(), Hint: errors.FlattenHints(err)}
	writeJSON(w, status, resp)
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
