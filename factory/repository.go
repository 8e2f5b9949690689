package factory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// Document kinds in the DocumentStore.
const (
	KindPricingRule = "pricing_rule"
	KindPlan        = "plan"
	KindAgent       = "agent"
	KindContract    = "contract"
	KindInvoice     = "invoice"
)

// =============================================================================
// REPOSITORY - Validated documents in, engine structs out
// =============================================================================

// Repository stores configuration documents after validating them and
// rebuilds engine structs on read, resolving references (agent -> plan,
// contract -> agents and premium rules, invoice -> contract).
//
// Parsed pricing rules are cached; every other kind is rebuilt on each
// read so a plan change is seen by the next contract load.
type Repository struct {
	docs    generic.DocumentStore
	factory *Factory

	mu    sync.RWMutex
	rules map[string]*pricing.Rule
}

func NewRepository(docs generic.DocumentStore, f *Factory) *Repository {
	if f == nil {
		f = New()
	}
	return &Repository{docs: docs, factory: f, rules: make(map[string]*pricing.Rule)}
}

func (r *Repository) lookup(ctx context.Context) Lookup {
	return Lookup{
		Plan:     func(id string) (*commission.Plan, error) { return r.Plan(ctx, id) },
		Agent:    func(id string) (*commission.Agent, error) { return r.Agent(ctx, id) },
		Rule:     func(id string) (*pricing.Rule, error) { return r.Rule(ctx, id) },
		Contract: func(id string) (*commission.Contract, error) { return r.Contract(ctx, id) },
	}
}

func (r *Repository) put(ctx context.Context, kind, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s %s", kind, id)
	}
	return r.docs.PutDocument(ctx, kind, id, body)
}

func listAll[T any](ctx context.Context, r *Repository, kind string, get func(context.Context, string) (T, error)) ([]T, error) {
	bodies, err := r.docs.ListDocuments(ctx, kind)
	if err != nil {
		return nil, err
	}
	result := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &head); err != nil {
			return nil, errors.Wrapf(err, "corrupt %s document", kind)
		}
		v, err := get(ctx, head.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// =============================================================================
// PRICING RULES
// =============================================================================

func (r *Repository) SaveRule(ctx context.Context, data []byte) (*pricing.Rule, error) {
	var rj RuleJSON
	if err := decode("pricing rule", data, &rj); err != nil {
		return nil, err
	}
	rule, err := r.factory.RuleFromJSON(rj)
	if err != nil {
		return nil, err
	}
	if err := r.put(ctx, KindPricingRule, rj.ID, rj); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.rules[rule.ID] = rule
	r.mu.Unlock()
	return rule, nil
}

func (r *Repository) Rule(ctx context.Context, id string) (*pricing.Rule, error) {
	r.mu.RLock()
	rule, ok := r.rules[id]
	r.mu.RUnlock()
	if ok {
		return rule, nil
	}

	body, err := r.docs.GetDocument(ctx, KindPricingRule, id)
	if err != nil {
		return nil, err
	}
	rule, err = r.factory.ParseRule(body)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.rules[id] = rule
	r.mu.Unlock()
	return rule, nil
}

func (r *Repository) Rules(ctx context.Context) ([]*pricing.Rule, error) {
	return listAll(ctx, r, KindPricingRule, r.Rule)
}

// =============================================================================
// PLANS & AGENTS
// =============================================================================

func (r *Repository) SavePlan(ctx context.Context, data []byte) (*commission.Plan, error) {
	var pj PlanJSON
	if err := decode("plan", data, &pj); err != nil {
		return nil, err
	}
	plan, err := r.factory.PlanFromJSON(pj)
	if err != nil {
		return nil, err
	}
	return plan, r.put(ctx, KindPlan, pj.ID, pj)
}

func (r *Repository) Plan(ctx context.Context, id string) (*commission.Plan, error) {
	body, err := r.docs.GetDocument(ctx, KindPlan, id)
	if err != nil {
		return nil, err
	}
	return r.factory.ParsePlan(body)
}

func (r *Repository) Plans(ctx context.Context) ([]*commission.Plan, error) {
	return listAll(ctx, r, KindPlan, r.Plan)
}

func (r *Repository) SaveAgent(ctx context.Context, data []byte) (*commission.Agent, error) {
	var aj AgentJSON
	if err := decode("agent", data, &aj); err != nil {
		return nil, err
	}
	agent, err := r.factory.AgentFromJSON(aj, r.lookup(ctx))
	if err != nil {
		return nil, err
	}
	return agent, r.put(ctx, KindAgent, aj.ID, aj)
}

func (r *Repository) Agent(ctx context.Context, id string) (*commission.Agent, error) {
	body, err := r.docs.GetDocument(ctx, KindAgent, id)
	if err != nil {
		return nil, err
	}
	return r.factory.ParseAgent(body, r.lookup(ctx))
}

func (r *Repository) Agents(ctx context.Context) ([]*commission.Agent, error) {
	return listAll(ctx, r, KindAgent, r.Agent)
}

// =============================================================================
// CONTRACTS & INVOICES
// =============================================================================

func (r *Repository) SaveContract(ctx context.Context, data []byte) (*commission.Contract, error) {
	var cj ContractJSON
	if err := decode("contract", data, &cj); err != nil {
		return nil, err
	}
	return r.saveContract(ctx, cj)
}

func (r *Repository) saveContract(ctx context.Context, cj ContractJSON) (*commission.Contract, error) {
	contract, err := r.factory.ContractFromJSON(cj, r.lookup(ctx))
	if err != nil {
		return nil, err
	}
	return contract, r.put(ctx, KindContract, cj.ID, cj)
}

func (r *Repository) Contract(ctx context.Context, id string) (*commission.Contract, error) {
	body, err := r.docs.GetDocument(ctx, KindContract, id)
	if err != nil {
		return nil, err
	}
	return r.factory.ParseContract(body, r.lookup(ctx))
}

// UpdateContract applies fn to the stored document and saves the result.
func (r *Repository) UpdateContract(ctx context.Context, id string, fn func(*ContractJSON)) (*commission.Contract, error) {
	body, err := r.docs.GetDocument(ctx, KindContract, id)
	if err != nil {
		return nil, err
	}
	var cj ContractJSON
	if err := decode("contract", body, &cj); err != nil {
		return nil, err
	}
	fn(&cj)
	cj.ID = id
	return r.saveContract(ctx, cj)
}

func (r *Repository) SaveInvoice(ctx context.Context, data []byte) (*commission.Invoice, error) {
	var ij InvoiceJSON
	if err := decode("invoice", data, &ij); err != nil {
		return nil, err
	}
	invoice, err := r.factory.InvoiceFromJSON(ij, r.lookup(ctx))
	if err != nil {
		return nil, err
	}
	return invoice, r.put(ctx, KindInvoice, ij.ID, ij)
}

func (r *Repository) Invoice(ctx context.Context, id string) (*commission.Invoice, error) {
	body, err := r.docs.GetDocument(ctx, KindInvoice, id)
	if err != nil {
		return nil, err
	}
	return r.factory.ParseInvoice(body, r.lookup(ctx))
}

// Reset forgets cached rules. Used after the document store is wiped.
func (r *Repository) Reset() {
	r.mu.Lock()
	r.rules = make(map[string]*pricing.Rule)
	r.mu.Unlock()
}
