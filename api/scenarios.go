/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with
	configuration documents and ledger rows demonstrating the pricing
	and commission engines.

AVAILABLE SCENARIOS:

	pricing-fee-tax:    Base 12 + flat fee 20, tax 14% on 32 (amount 32, tax 4.48)
	broker-prepayment:  Broker prepays 60% of a 1200 first year premium (720),
	                    then a 600 invoice redeems 60 of it; insurer earns 5%

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save configuration documents via the factory repository
 3. Drive the commission engine (activation, invoicing)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "broker-prepayment"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "pricing-fee-tax",
		Name:        "Fee and Tax Pricing",
		Description: "Monthly premium of 12 with a flat fee of 20 and a 14% tax on the fee-inclusive amount",
	},
	{
		ID:          "broker-prepayment",
		Name:        "Broker Prepayment",
		Description: "Contract activation prepays the broker 720, the first invoice redeems 60 of it",
	},
}

const scenarioPricingRule = `{
	"id": "PR-FEE-TAX",
	"name": "Fee and tax",
	"start_date": "2025-01-01",
	"frequency": "monthly",
	"taxes": [{"code": "TT", "name": "Insurance tax", "versions": [{"start_date": "2020-01-01", "kind": "rate", "value": 14}]}],
	"fees": [{"code": "FEE", "name": "Management fee", "versions": [{"start_date": "2020-01-01", "kind": "flat", "value": 20}]}],
	"components": [
		{"code": "PP", "kind": "base", "fixed_amount": 12},
		{"kind": "fee", "fee": "FEE"},
		{"kind": "tax", "tax": "TT"}
	]
}`

var brokerScenarioDocs = []struct {
	kind string
	body string
}{
	{"plan", `{"id": "PLAN-BROKER", "name": "Broker", "commission_product": "COM-BROKER", "adjust_prepayment": true,
		"lines": [{"options": ["DEATH"], "formula": "amount * 0.1", "prepayment_formula": "first_year_premium * 0.6"}]}`},
	{"plan", `{"id": "PLAN-INSURER", "name": "Insurer", "commission_product": "COM-INSURER",
		"lines": [{"options": ["DEATH"], "formula": "amount * 0.05"}]}`},
	{"agent", `{"id": "BROKER", "party": "Broker Co", "kind": "broker", "currency": "EUR", "plan_id": "PLAN-BROKER"}`},
	{"agent", `{"id": "INSURER", "party": "Insurer SA", "kind": "insurer", "currency": "EUR", "plan_id": "PLAN-INSURER", "coverages": ["DEATH"]}`},
	{"contract", `{"id": "CTR-1", "product": "LIFE", "signature_date": "2025-01-15",
		"agent_id": "BROKER", "insurer_ids": ["INSURER"],
		"options": [{"id": "OPT-1", "coverage": "DEATH", "premium": "1200"}]}`},
}

const brokerScenarioInvoice = `{"id": "INV-1", "contract_id": "CTR-1", "date": "2025-03-01",
	"lines": [{"id": "INV-1-L1", "option_id": "OPT-1", "amount": 600}]}`

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.fail(w, "invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "pricing-fee-tax":
		load = h.loadPricingScenario
	case "broker-prepayment":
		load = h.loadBrokerPrepaymentScenario
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario", errors.Newf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, "failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		h.fail(w, "failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.Log.Infow("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears configuration documents and the ledger.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, "failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Repo.Reset()
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadPricingScenario(ctx context.Context) error {
	_, err := h.Repo.SaveRule(ctx, []byte(scenarioPricingRule))
	return err
}

func (h *Handler) loadBrokerPrepaymentScenario(ctx context.Context) error {
	for _, doc := range brokerScenarioDocs {
		var err error
		switch doc.kind {
		case "plan":
			_, err = h.Repo.SavePlan(ctx, []byte(doc.body))
		case "agent":
			_, err = h.Repo.SaveAgent(ctx, []byte(doc.body))
		case "contract":
			_, err = h.Repo.SaveContract(ctx, []byte(doc.body))
		}
		if err != nil {
			return errors.Wrapf(err, "scenario %s document", doc.kind)
		}
	}

	contract, err := h.Repo.UpdateContract(ctx, "CTR-1", func(cj *factory.ContractJSON) {
		cj.Status = string(commission.StatusActive)
	})
	if err != nil {
		return err
	}
	if _, err := h.Engine.CreatePrepaymentCommissions(ctx, contract, false); err != nil {
		return errors.Wrap(err, "activation")
	}

	invoice, err := h.Repo.SaveInvoice(ctx, []byte(brokerScenarioInvoice))
	if err != nil {
		return err
	}
	rows, err := h.Engine.GenerateInvoiceCommissions(ctx, invoice)
	if err != nil {
		return errors.Wrap(err, "invoice commissions")
	}
	for _, c := range rows {
		if c.RedeemedPrepayment.Valid {
			h.Metrics.Redeemed(c.RedeemedPrepayment.Decimal)
		}
	}
	h.Log.Debugw("scenario ledger", "rows", len(rows), "total", toCommissionsResponse(rows).Total)
	return nil
}
