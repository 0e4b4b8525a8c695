package preflight

// Category groups related findings.
type Category string

const (
	Packages  Category = "packages"
	Files     Category = "files"
	Env       Category = "env"
	Toolchain Category = "toolchain"
)

// Status is the outcome for a single subject.
type Status int

const (
	OK Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warn:
		return "WARN"
	case Fail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText makes statuses readable in JSON and YAML reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is one line of a preflight report.
type Finding struct {
	Subject string `json:"subject" yaml:"subject"`
	Status  Status `json:"status" yaml:"status"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
	// Remedy tells the user how to fix a failing subject.
	Remedy string `json:"remedy,omitempty" yaml:"remedy,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Category Category  `json:"category" yaml:"category"`
	Passed   bool      `json:"passed" yaml:"passed"`
	Findings []Finding `json:"findings" yaml:"findings"`
}

func (c *CheckResult) add(f Finding) {
	c.Findings = append(c.Findings, f)
	if f.Status == Fail {
		c.Passed = false
	}
}

func newCheck(cat Category) CheckResult {
	return CheckResult{Category: cat, Passed: true}
}

// Report aggregates every check.
type Report struct {
	Checks []CheckResult `json:"checks" yaml:"checks"`
}

// Passed reports whether every check except the toolchain check passed.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if c.Category != Toolchain && !c.Passed {
			return false
		}
	}
	return true
}

// Check returns the result for cat, or nil if it was not run.
func (r *Report) Check(cat Category) *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Category == cat {
			return &r.Checks[i]
		}
	}
	return nil
}

// Issues returns every failing finding that counts towards Passed, in
// report order.
func (r *Report) Issues() []Finding {
	var issues []Finding
	for _, c := range r.Checks {
		if c.Category == Toolchain {
			continue
		}
		for _, f := range c.Findings {
			if f.Status == Fail {
				issues = append(issues, f)
			}
		}
	}
	return issues
}
