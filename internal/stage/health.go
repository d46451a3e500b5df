package stage

import "fmt"

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unready Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// String renders the record for status output and log lines.
func (h Health) String() string {
	if h.Ready {
		return fmt.Sprintf("%s: ok", h.Name)
	}
	if h.Detail == "" {
		return fmt.Sprintf("%s: not ready", h.Name)
	}
	return fmt.Sprintf("%s: %s", h.Name, h.Detail)
}
