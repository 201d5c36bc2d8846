package chain

import (
	"fmt"

	"github.com/devicelab-dev/uiresolve/pkg/core"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	Variant string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Variant == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Variant, e.Message)
}

// ValidationResult contains the validation result.
type ValidationResult struct {
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Err folds the result into one InvalidSpec error, or nil.
func (r *ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return core.ErrInvalidSpec.
		WithMessagef("invalid plan: %s", msgs[0]).
		WithDetails(map[string]interface{}{"errors": msgs})
}

func (r *ValidationResult) add(variant, format string, args ...interface{}) {
	r.Errors = append(r.Errors, &ValidationError{Variant: variant, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a plan before execution. It reports every problem, not
// just the first. Bounds syntax is left to execution so that a bad bounds
// hint fails only its own variant.
func (p *Plan) Validate() *ValidationResult {
	r := &ValidationResult{}

	if len(p.Variants) == 0 {
		r.add("", "plan has no variants")
	}

	cfg := p.Strategy
	if cfg.Selected != "" {
		if _, ok := p.Variant(cfg.Selected); !ok {
			r.add("", "selected variant %q is not in the plan", cfg.Selected)
		}
	}
	if cfg.TimeBudgetMS < 0 {
		r.add("", "time_budget_ms must not be negative")
	}
	if cfg.PerCandidateBudgetMS < 0 {
		r.add("", "per_candidate_budget_ms must not be negative")
	}
	if cfg.MinConfidence != nil && (*cfg.MinConfidence < 0 || *cfg.MinConfidence > 1) {
		r.add("", "min_confidence must be within [0,1]")
	}
	if a := p.Context.ContainerAnchor; a != nil {
		switch a.By {
		case AnchorByID, AnchorByPath, AnchorByClassStructure:
		default:
			r.add("", "unknown container anchor type %q", a.By)
		}
	}

	seen := make(map[string]bool)
	for i := range p.Variants {
		v := &p.Variants[i]
		id := v.ID
		if id == "" {
			id = fmt.Sprintf("variant[%d]", i)
			r.add(id, "missing id")
		} else if seen[id] {
			r.add(id, "duplicate id")
		}
		seen[id] = true
		p.validateVariant(r, id, v)
	}

	return r
}

func (p *Plan) validateVariant(r *ValidationResult, id string, v *Variant) {
	sel := v.Selectors

	switch v.Kind {
	case KindSelfID:
		if sel.Self == nil || sel.Self.ResourceID == "" {
			r.add(id, "self_id needs selectors.self.resource_id")
		}
	case KindSelfDesc:
		if sel.Self == nil || sel.Self.ContentDesc == "" {
			r.add(id, "self_desc needs selectors.self.content_desc")
		}
	case KindChildToParent, KindRegionTextToParent:
		if sel.Child.IsEmpty() {
			r.add(id, "%s needs selectors.child", v.Kind)
		}
	case KindRegionLocalIndexWithCheck:
		if v.Index == nil || v.Index.Local < 1 {
			r.add(id, "region_local_index_with_check needs index.local_index >= 1")
		}
		if len(v.Checks) == 0 {
			r.add(id, "region_local_index_with_check needs at least one check")
		}
	case KindNeighborRelative:
		if sel.Child.IsEmpty() {
			r.add(id, "neighbor_relative needs selectors.child as the neighbor")
		}
		if v.Structure == nil || v.Structure.Direction == "" {
			r.add(id, "neighbor_relative needs structure.direction")
		} else {
			switch v.Structure.Direction {
			case DirectionUp, DirectionDown, DirectionLeft, DirectionRight, DirectionNext, DirectionPrev:
			default:
				r.add(id, "unknown direction %q", v.Structure.Direction)
			}
		}
	case KindGlobalIndexWithStrongChecks:
		if v.Index == nil || v.Index.Global < 1 {
			r.add(id, "global_index_with_strong_checks needs index.global_index >= 1")
		}
		if sel.Self.IsEmpty() {
			r.add(id, "global_index_with_strong_checks needs selectors.self")
		}
	case KindBoundsTap:
		if v.Bounds == "" {
			r.add(id, "bounds_tap needs bounds")
		}
	default:
		r.add(id, "unknown kind %q", v.Kind)
	}

	if v.Kind.Regional() && v.ContainerPath == "" && p.Context.ContainerAnchor == nil {
		r.add(id, "%s needs container_path or context.container_anchor", v.Kind)
	}
	if v.Structure != nil && v.Structure.Levels < 0 {
		r.add(id, "structure.levels must not be negative")
	}
	if v.Structure != nil {
		switch v.Structure.Relation {
		case "", RelationParentChild, RelationAncestorDescendant, RelationSibling:
		default:
			r.add(id, "unknown relation %q", v.Structure.Relation)
		}
	}

	for _, c := range v.Checks {
		switch c.Type {
		case CheckClickable, CheckEnabled:
		case CheckChildTextContains:
			if c.Value == "" {
				r.add(id, "%s check needs a value", c.Type)
			}
		case CheckChildTextContainsAny:
			if len(c.Values) == 0 {
				r.add(id, "%s check needs values", c.Type)
			}
		default:
			r.add(id, "unknown check type %q", c.Type)
		}
	}
}
