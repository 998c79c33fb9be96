// Package resources implements MCP resource handlers for outreach generation.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (kaleads://...) following MCP conventions.
package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/resolvers"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	ResolversURI = "kaleads://resolvers"
	ContactsURI  = "kaleads://contacts"
)

// ContactLister lists recently active contacts.
type ContactLister interface {
	RecentContacts(ctx context.Context, limit int) ([]ledger.ContactSummary, error)
}

// Handler manages kaleads resource endpoints.
type Handler struct {
	resolvers []*resolvers.Resolver
	contacts  ContactLister
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(rs []*resolvers.Resolver, contacts ContactLister) *Handler {
	return &Handler{resolvers: rs, contacts: contacts}
}

// ResolversResource returns the MCP resource definition for the resolver catalogue.
func (h *Handler) ResolversResource() mcp.Resource {
	return mcp.NewResource(
		ResolversURI,
		"Resolver Catalogue",
		mcp.WithResourceDescription("Every field resolver with its dependencies, fallback tiers and prompt sections"),
		mcp.WithMIMEType("application/json"),
	)
}

// ContactsResource returns the MCP resource definition for recent contacts.
func (h *Handler) ContactsResource() mcp.Resource {
	return mcp.NewResource(
		ContactsURI,
		"Recent Contacts",
		mcp.WithResourceDescription("The 50 most recently active contacts with their latest quality score"),
		mcp.WithMIMEType("application/json"),
	)
}

// TierView is one fallback tier of a resolver.
type TierView struct {
	Level          int           `json:"level"`
	Strategy       string        `json:"strategy"`
	Source         domain.Source `json:"source"`
	BaseConfidence int           `json:"base_confidence"`
	Timeout        string        `json:"timeout,omitempty"`
	Retry          bool          `json:"retry,omitempty"`
}

// ResolverView describes one resolver.
type ResolverView struct {
	Field          domain.FieldID   `json:"field"`
	DependsOn      []domain.FieldID `json:"depends_on,omitempty"`
	Exclusions     []string         `json:"exclusions,omitempty"`
	PromptSections []string         `json:"prompt_sections"`
	Tiers          []TierView       `json:"tiers"`
}

// Catalogue describes the resolvers. It is what the resolvers resource serves.
func Catalogue(rs []*resolvers.Resolver) []ResolverView {
	out := make([]ResolverView, 0, len(rs))
	for _, r := range rs {
		v := ResolverView{Field: r.Field, DependsOn: r.DependsOn, PromptSections: []string{}}
		if r.Exclusions.ClientIdentity {
			v.Exclusions = append(v.Exclusions, "client_identity")
		}
		if r.Exclusions.ClientCompetitors {
			v.Exclusions = append(v.Exclusions, "client_competitors")
		}
		if r.Exclusions.TargetName {
			v.Exclusions = append(v.Exclusions, "target_name")
		}
		for _, s := range r.Prompt.Sections() {
			v.PromptSections = append(v.PromptSections, string(s))
		}
		for i, spec := range r.Specs {
			level := cascade.LevelOf(i, len(r.Specs))
			if spec.BaseConfidence == 0 {
				spec.BaseConfidence = cascade.DefaultConfidence(level)
			}
			t := TierView{
				Level:          level,
				Strategy:       spec.Strategy.Name(),
				Source:         spec.Source,
				BaseConfidence: domain.ClampConfidence(level, spec.BaseConfidence),
				Retry:          spec.Retry,
			}
			if spec.Timeout > 0 {
				t.Timeout = spec.Timeout.Round(time.Millisecond).String()
			}
			v.Tiers = append(v.Tiers, t)
		}
		out = append(out, v)
	}
	return out
}

// HandleResolvers returns the resolver catalogue as JSON.
func (h *Handler) HandleResolvers(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(req.Params.URI, Catalogue(h.resolvers))
}

// HandleContacts returns the recent contacts as JSON.
func (h *Handler) HandleContacts(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	contacts, err := h.contacts.RecentContacts(ctx, 50)
	if err != nil {
		return errorResource(req.Params.URI, fmt.Sprintf("listing contacts: %v", err)), nil
	}
	return jsonContents(req.Params.URI, contacts)
}
