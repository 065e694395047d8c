package config

// Config is the top-level YAML structure.
type Config struct {
	Version   string        `yaml:"version"`
	Service   ServiceConf   `yaml:"service"`
	Logging   LoggingConf   `yaml:"logging"`
	HTTP      HTTPConf      `yaml:"http"`
	Bus       BusConf       `yaml:"bus"`
	Store     StoreConf     `yaml:"store"`
	Dispatch  DispatchConf  `yaml:"dispatch"`
	Tracing   TracingConf   `yaml:"tracing"`
	Agents    []AgentConf   `yaml:"agents"`
	Rules     []RuleDef     `yaml:"rules"`
	Schedules []ScheduleDef `yaml:"schedules"`
}

// ServiceConf identifies the running process in logs and traces.
type ServiceConf struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

// LoggingConf controls log output format and verbosity.
type LoggingConf struct {
	Format    string `yaml:"format"` // text | json
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"add_source"`
}

// HTTPConf configures the diagnostics API.
type HTTPConf struct {
	Addr string `yaml:"addr"`
}

// BusConf holds event bus tunables.
type BusConf struct {
	RecentCapacity   int `yaml:"recent_capacity"`
	HandlerTimeoutMs int `yaml:"handler_timeout_ms"` // 0 = no deadline
	MaxDepth         int `yaml:"max_depth"`
}

// StoreConf locates the domain document store.
type StoreConf struct {
	Path string `yaml:"path"` // SQLite file, or ":memory:"
}

// DispatchConf sizes the async ingestion worker pool.
type DispatchConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// TracingConf configures the OTLP exporter; an empty endpoint disables export.
type TracingConf struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AgentConf overrides a built-in agent's defaults.
type AgentConf struct {
	ID      string         `yaml:"id"`
	Enabled *bool          `yaml:"enabled"` // nil keeps the agent default
	Params  map[string]any `yaml:"params"`
}

// RuleDef declares a propagation rule.
type RuleDef struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Enabled     *bool       `yaml:"enabled"` // nil = enabled
	EventTypes  []string    `yaml:"event_types"`
	Sources     []string    `yaml:"sources"` // empty = any source
	When        string      `yaml:"when"`    // optional condition expression
	Effects     []EffectDef `yaml:"effects"`
}

// IsEnabled applies the default for an omitted enabled flag.
func (r RuleDef) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// EffectDef is one side effect of a rule.
type EffectDef struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// ScheduleDef emits an event whenever its cron expression is due.
type ScheduleDef struct {
	ID        string         `yaml:"id"`
	Cron      string         `yaml:"cron"`
	EventType string         `yaml:"event_type"` // defaults to system:tick
	Data      map[string]any `yaml:"data"`
	Enabled   *bool          `yaml:"enabled"`
}

// IsEnabled applies the default for an omitted enabled flag.
func (s ScheduleDef) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}
