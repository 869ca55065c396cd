package domain

// Platform is the OS family a ToolSpec targets.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
	PlatformCross   Platform = "cross"
)

// Policy is the hard-constraint section of a ToolSpec.
type Policy struct {
	ProductionSafe       bool
	RequiresApproval     bool
	RequiredPermissions  []string
	MaxCost              float64
	AllowedEnvironments  []string
}

// PerformancePattern is one named execution profile of a tool, carrying
// the formula strings evaluated by pkg/shared/mathsafe.
type PerformancePattern struct {
	Name           string
	TimeMsFormula  string
	CostFormula    string
	Complexity     float64
	Accuracy       float64
	Completeness   float64
}

// ToolSpec is one versioned row in the tool catalog.
type ToolSpec struct {
	ToolName     string
	Version      int
	IsLatest     bool
	Platform     Platform
	Category     string
	Capabilities []string
	Patterns     []PerformancePattern
	Policy       Policy
	Enabled      bool
}

// HasCapability reports whether the tool advertises the given capability.
func (t ToolSpec) HasCapability(capability string) bool {
	for _, c := range t.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Pattern looks up a named PerformancePattern on the tool.
func (t ToolSpec) Pattern(name string) (PerformancePattern, bool) {
	for _, p := range t.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return PerformancePattern{}, false
}
