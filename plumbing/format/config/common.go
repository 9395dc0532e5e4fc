package config

// New creates a new config instance.
func New() *Config {
	return &Config{}
}

// Config contains all the sections from a config file, in insertion
// order. It is the raw representation: no defaults are applied here.
type Config struct {
	Sections Sections
}

const (
	// NoSubsection token is passed to Config.Section and friends to
	// represent the absence of a subsection.
	NoSubsection = ""
)

// Section returns an existing section with the given name or creates
// a new one.
func (c *Config) Section(name string) *Section {
	for i := len(c.Sections) - 1; i >= 0; i-- {
		s := c.Sections[i]
		if s.IsName(name) {
			return s
		}
	}

	s := &Section{Name: name}
	c.Sections = append(c.Sections, s)
	return s
}

// HasSection checks if the Config has a section with the specified name.
func (c *Config) HasSection(name string) bool {
	for _, s := range c.Sections {
		if s.IsName(name) {
			return true
		}
	}
	return false
}

// RemoveSection removes a section from a config file.
func (c *Config) RemoveSection(name string) *Config {
	result := Sections{}
	for _, s := range c.Sections {
		if !s.IsName(name) {
			result = append(result, s)
		}
	}

	c.Sections = result
	return c
}

// RemoveSubsection removes a subsection from a config file.
func (c *Config) RemoveSubsection(section string, subsection string) *Config {
	for _, s := range c.Sections {
		if s.IsName(section) {
			result := Subsections{}
			for _, ss := range s.Subsections {
				if !ss.IsName(subsection) {
					result = append(result, ss)
				}
			}
			s.Subsections = result
		}
	}

	return c
}

// AddOption adds an option to a given section and subsection. Use the
// NoSubsection constant for the subsection argument if no subsection
// is wanted.
func (c *Config) AddOption(section string, subsection string, key string, value string) *Config {
	if subsection == NoSubsection {
		c.Section(section).AddOption(key, value)
	} else {
		c.Section(section).Subsection(subsection).AddOption(key, value)
	}

	return c
}

// SetOption sets an option to a given section and subsection. Use the
// NoSubsection constant for the subsection argument if no subsection
// is wanted.
func (c *Config) SetOption(section string, subsection string, key string, value string) *Config {
	if subsection == NoSubsection {
		c.Section(section).SetOption(key, value)
	} else {
		c.Section(section).Subsection(subsection).SetOption(key, value)
	}

	return c
}

// GetOption gets the value of a named option from a section and
// subsection. If there are multiple definitions of a key, the last
// one wins, matching git behaviour since v1.8.1-rc1. Missing options
// yield the empty string.
func (c *Config) GetOption(section string, subsection string, key string) string {
	if subsection == NoSubsection {
		return c.Section(section).GetOption(key)
	}
	return c.Section(section).Subsection(subsection).GetOption(key)
}

// GetAllOptions gets all the values of a named option from a section
// and subsection, in insertion order.
func (c *Config) GetAllOptions(section string, subsection string, key string) []string {
	if subsection == NoSubsection {
		return c.Section(section).GetAllOptions(key)
	}
	return c.Section(section).Subsection(subsection).GetAllOptions(key)
}
