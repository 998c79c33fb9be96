// Package resolvers configures one cascade per email field.
//
// A Resolver is configuration, not behaviour: an ordered strategy list,
// the prompt its inference tier renders, the fields it depends on and
// the exclusion policy applied to its answers. Execution is delegated
// to the shared cascade.Controller. Resolvers hold no per-company state
// and may be invoked concurrently.
package resolvers

import (
	"context"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/prompts"
	"github.com/Tegath/kaleads/internal/services/inference"
	"github.com/Tegath/kaleads/internal/services/inspect"
	"github.com/Tegath/kaleads/internal/services/search"
)

// Services are the external clients shared by every resolver. They are
// created once at startup; nil members are replaced by Disabled stubs.
type Services struct {
	Search    search.Searcher
	Inspect   inspect.Inspector
	Inference inference.Completer
}

func (s Services) withDefaults() Services {
	if s.Search == nil {
		s.Search = search.Disabled{}
	}
	if s.Inspect == nil {
		s.Inspect = inspect.Disabled{}
	}
	if s.Inference == nil {
		s.Inference = inference.Disabled{}
	}
	return s
}

// ExclusionPolicy selects which values a resolver must never return.
type ExclusionPolicy struct {
	// ClientIdentity excludes the client's id and display name.
	ClientIdentity bool
	// ClientCompetitors excludes the client's known competitors.
	ClientCompetitors bool
	// TargetName excludes the target company's own name.
	TargetName bool
}

// Build returns the exclusion set for one invocation.
func (p ExclusionPolicy) Build(company domain.CompanyDescriptor, client *domain.ClientContext) cascade.ExclusionSet {
	set := cascade.NewExclusionSet()
	if client != nil {
		if p.ClientIdentity {
			set.Add(client.ID, client.Name)
		}
		if p.ClientCompetitors {
			set.Add(client.Competitors...)
		}
	}
	if p.TargetName {
		set.Add(company.Name)
	}
	return set
}

// Resolver resolves one field.
type Resolver struct {
	Field      domain.FieldID
	DependsOn  []domain.FieldID
	Exclusions ExclusionPolicy
	Prompt     prompts.Prompt
	Specs      []cascade.Spec

	controller *cascade.Controller
}

// New binds a resolver configuration to a controller.
func New(field domain.FieldID, controller *cascade.Controller, specs []cascade.Spec) *Resolver {
	if controller == nil {
		controller = cascade.NewController(nil)
	}
	return &Resolver{Field: field, Specs: specs, controller: controller}
}

// Validate checks the strategy list without running it.
func (r *Resolver) Validate() error {
	return cascade.Validate(r.Field, r.Specs)
}

// Resolve runs the cascade for a company with no dependency input.
func (r *Resolver) Resolve(ctx context.Context, company domain.CompanyDescriptor, client *domain.ClientContext) (domain.ResolvedField, error) {
	return r.ResolveWith(ctx, company, client, nil)
}

// ResolveWith runs the cascade with the values of already-resolved
// fields available to strategies. It fails only with a
// *cascade.ConfigError naming this resolver.
func (r *Resolver) ResolveWith(ctx context.Context, company domain.CompanyDescriptor, client *domain.ClientContext, resolved map[domain.FieldID]domain.ResolvedField) (domain.ResolvedField, error) {
	if client == nil {
		client = &domain.ClientContext{}
	}
	req := cascade.Request{
		Field:    r.Field,
		Company:  company,
		Client:   client,
		Resolved: resolved,
		Excluded: r.Exclusions.Build(company, client),
	}
	ctrl := r.controller
	if ctrl == nil {
		ctrl = cascade.NewController(nil)
	}
	return ctrl.Run(ctx, req, r.Specs)
}
