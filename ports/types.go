package ports

import "fmt"

// ServicePortSpec names a logical service and the port it wants. Name is
// also the key under which the port is stored in the env document.
type ServicePortSpec struct {
	Name        string `mapstructure:"name" validate:"required"`
	Description string `mapstructure:"description"`
	DefaultPort int    `mapstructure:"default_port" validate:"min=1,max=65535"`
}

// DefaultSpecs returns the fixed service set of the stack.
func DefaultSpecs() []ServicePortSpec {
	return []ServicePortSpec{
		{Name: "API_PORT", Description: "API (FastAPI)", DefaultPort: 8000},
		{Name: "FRONTEND_PORT", Description: "Frontend (Streamlit)", DefaultPort: 8501},
		{Name: "PROMETHEUS_PORT", Description: "Prometheus", DefaultPort: 9091},
		{Name: "GRAFANA_PORT", Description: "Grafana", DefaultPort: 3000},
	}
}

// Assignment maps a service name to its final port.
type Assignment map[string]int

// Strings returns the assignment with ports rendered as decimal strings,
// ready to merge into an env document.
func (a Assignment) Strings() map[string]string {
	m := make(map[string]string, len(a))
	for name, port := range a {
		m[name] = fmt.Sprint(port)
	}
	return m
}

// RemapRecord is produced when a service's default port was busy and a
// different port was assigned.
type RemapRecord struct {
	Name         string `json:"name" yaml:"name"`
	OriginalPort int    `json:"original_port" yaml:"original_port"`
	NewPort      int    `json:"new_port" yaml:"new_port"`
}

func (r RemapRecord) String() string {
	return fmt.Sprintf("%s: %d -> %d", r.Name, r.OriginalPort, r.NewPort)
}

// Warning is a non-fatal allocation problem.
type Warning struct {
	Name string `json:"name" yaml:"name"`
	Port int    `json:"port" yaml:"port"`
	Msg  string `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Name, w.Msg)
}
