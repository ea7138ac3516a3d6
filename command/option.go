package command

type settings struct {
	staticValue any
	hasStatic   bool
	fallbackCmd Command
}

// Option configures a command at construction time.
type Option func(*settings)

// WithStaticFallback replies with the literal value v when the primary
// call fails.
func WithStaticFallback(v any) Option {
	return func(s *settings) {
		s.staticValue = v
		s.hasStatic = true
		s.fallbackCmd = nil
	}
}

// WithFallbackCommand runs cmd through the same key's admission path
// when the primary call fails.
func WithFallbackCommand(cmd Command) Option {
	return func(s *settings) {
		s.fallbackCmd = cmd
		s.hasStatic = false
	}
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
