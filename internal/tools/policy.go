package tools

// Profile names the coarse tool-access posture for a session or provider
// route. Grounded in the teacher's internal/tools/policy.go toolProfiles
// idiom, simplified to the spec's deny/allow/profile model (spec.md §4.5)
// rather than the teacher's elaborate group/alias system.
type Profile string

const (
	ProfileDefault Profile = ""
	ProfileStrict  Profile = "strict"
)

// strictRestrictedTools are denied under ProfileStrict unless explicitly
// present in AllowedTools.
var strictRestrictedTools = map[string]bool{
	"shell": true,
	"web":   true,
}

// Policy is the tool-access policy evaluated by RunTool.
type Policy struct {
	Profile       Profile
	DeniedTools   []string
	AllowedTools  []string
}

// decision is the outcome of evaluating a tool name against a Policy.
type decision struct {
	allowed bool
	reason  string
}

func (p Policy) evaluate(name string) decision {
	for _, d := range p.DeniedTools {
		if d == name {
			return decision{allowed: false, reason: "denied by deniedTools"}
		}
	}

	allowListed := containsName(p.AllowedTools, name)
	if len(p.AllowedTools) > 0 && !allowListed {
		return decision{allowed: false, reason: "not in allowedTools"}
	}

	if p.Profile == ProfileStrict && strictRestrictedTools[name] && !allowListed {
		return decision{allowed: false, reason: "denied by strict profile"}
	}

	return decision{allowed: true}
}

func containsName(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
