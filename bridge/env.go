package bridge

// EnvHandle is a bridge whose launch payload was handed to the process from
// outside (environment, config file or flag). It has no ready hook.
type EnvHandle struct {
	raw string
}

func (h *EnvHandle) InitData() string { return h.raw }

// EnvProbe reports a bridge whenever source yields a non-empty payload.
// source is read on every lookup so a payload injected later is still seen.
type EnvProbe struct {
	source func() string
}

func NewEnvProbe(source func() string) *EnvProbe {
	return &EnvProbe{source: source}
}

func (p *EnvProbe) Lookup() (Handle, bool) {
	if p.source == nil {
		return nil, false
	}
	raw := p.source()
	if raw == "" {
		return nil, false
	}
	return &EnvHandle{raw: raw}, true
}
