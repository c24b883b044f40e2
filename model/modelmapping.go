package model

import "fmt"

// ModelMapping binds a client-visible display name to a concrete
// (provider, actual model name) pair, with optional per-mapping context
// handling that overrides the gateway-wide default.
type ModelMapping struct {
	DisplayName     string
	ProviderName    string
	ActualModelName string
	ContextConfig   *ContextConfig
}

// EffectiveContextConfig returns the mapping's own ContextConfig if set,
// otherwise the supplied gateway default.
func (m ModelMapping) EffectiveContextConfig(gatewayDefault ContextConfig) ContextConfig {
	if m.ContextConfig != nil {
		return *m.ContextConfig
	}
	return gatewayDefault
}

// SplitNamespace divides a client-supplied display name on the first "/"
// into (namespace, rest). A name with no "/" returns ("", name); the
// router matches the raw DisplayName against the mapping table before
// splitting, so an unmapped name with no "/" resolves to nothing.
func SplitNamespace(displayName string) (namespace, rest string) {
	for i := 0; i < len(displayName); i++ {
		if displayName[i] == '/' {
			return displayName[:i], displayName[i+1:]
		}
	}
	return "", displayName
}

// ErrNoSuchMapping is returned by a mapping lookup that finds no match.
type ErrNoSuchMapping struct {
	DisplayName string
}

func (e *ErrNoSuchMapping) Error() string {
	return fmt.Sprintf("no model mapping for %q", e.DisplayName)
}
