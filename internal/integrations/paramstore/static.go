package paramstore

import (
	"context"
	"fmt"
	"strings"
)

// Static is a map-backed Getter for deployments that supply secrets through
// the environment instead of SSM. It lets env-provided values flow through
// the same parameter names the SSM path uses.
type Static struct {
	values map[string]string
}

// NewStatic creates a Static getter over a copy of values.
func NewStatic(values map[string]string) *Static {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Static{values: copied}
}

func (s *Static) GetParameter(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("paramstore: name is required")
	}
	v, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("paramstore: parameter %q not found", name)
	}
	return v, nil
}
