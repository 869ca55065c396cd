package catalog

import (
	"context"

	"go.uber.org/zap"
)

// ToolLookup adapts the catalog Service to pkg/execution.ToolLookup, so
// the engine classifies a plan's action class and approval requirement
// from live catalog data instead of a caller-supplied hint.
//
// category is free text on ToolSpec (spec.md §3); this module treats
// "destructive"/"delete" as DESTRUCTIVE and "mutate"/"write" as MUTATE,
// everything else as READ, since the catalog schema does not constrain
// category to an enum.
type ToolLookup struct {
	catalog *Service
	log     *zap.Logger
}

func NewToolLookup(catalog *Service, log *zap.Logger) *ToolLookup {
	if log == nil {
		log = zap.NewNop()
	}
	return &ToolLookup{catalog: catalog, log: log}
}

func (l *ToolLookup) RequiresApproval(toolName string) bool {
	spec, err := l.catalog.GetToolByName(context.Background(), toolName)
	if err != nil {
		l.log.Warn("tool lookup failed, defaulting to approval-required", zap.String("tool", toolName), zap.Error(err))
		return true
	}
	return spec.Policy.RequiresApproval
}

func (l *ToolLookup) IsWrite(toolName string) bool {
	switch l.category(toolName) {
	case "mutate", "write":
		return true
	default:
		return false
	}
}

func (l *ToolLookup) IsDestructive(toolName string) bool {
	switch l.category(toolName) {
	case "destructive", "delete":
		return true
	default:
		return false
	}
}

func (l *ToolLookup) category(toolName string) string {
	spec, err := l.catalog.GetToolByName(context.Background(), toolName)
	if err != nil {
		return ""
	}
	return spec.Category
}
