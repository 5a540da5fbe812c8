package eventbus

// Settings selects the pub/sub transport for trigger and update streams.
// The zero value uses the in-memory gochannel transport.
type Settings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func (s Settings) withDefaults() Settings {
	if s.Addr == "" {
		s.Addr = "localhost:6379"
	}
	if s.Group == "" {
		s.Group = "chatform"
	}
	if s.Consumer == "" {
		s.Consumer = "chatform-1"
	}
	return s
}
