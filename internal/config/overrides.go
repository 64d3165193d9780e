package config

// Overrides holds command-line values. Nil fields were not given and leave
// the loaded value alone.
type Overrides struct {
	Mode       *string
	MaxMarkets *int
	Months     *int
	Limit      *int
	RPS        *float64
	Out        *string
	Schedule   *string
}

// Apply copies every set override into cfg.
func (o Overrides) Apply(cfg *Config) {
	if o.Mode != nil {
		cfg.Mode = *o.Mode
	}
	if o.MaxMarkets != nil {
		cfg.Discovery.MaxMarkets = *o.MaxMarkets
	}
	if o.Months != nil {
		cfg.Discovery.Months = *o.Months
	}
	if o.Limit != nil {
		cfg.Discovery.Limit = *o.Limit
	}
	if o.RPS != nil {
		cfg.Fetch.RPS = *o.RPS
	}
	if o.Out != nil {
		cfg.Run.Out = *o.Out
	}
	if o.Schedule != nil {
		cfg.Run.Schedule = *o.Schedule
	}
}
