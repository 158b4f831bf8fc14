package engine

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Playbook is an ordered list of plays.
type Playbook []Play

type Play struct {
	Name  string         `yaml:"name"`
	Hosts HostList       `yaml:"hosts"`
	Vars  map[string]any `yaml:"vars"`
	Tasks []Task         `yaml:"tasks"`
}

// HostList accepts either a comma separated string or a sequence of host names.
type HostList []string

func (h *HostList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var hosts []string

		for _, host := range strings.Split(value.Value, ",") {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}

		*h = hosts

		return nil
	case yaml.SequenceNode:
		var hosts []string
		if err := value.Decode(&hosts); err != nil {
			return err
		}

		*h = hosts

		return nil
	default:
		return fmt.Errorf("hosts must be a string or a list, line %d", value.Line)
	}
}

type Task struct {
	Name         string         `yaml:"name"`
	Shell        string         `yaml:"shell"`
	Command      string         `yaml:"command"`
	Debug        *DebugArgs     `yaml:"debug"`
	SetFact      map[string]any `yaml:"set_fact"`
	Register     string         `yaml:"register"`
	When         string         `yaml:"when"`
	IgnoreErrors bool           `yaml:"ignore_errors"`
	// Timeout in seconds. Zero uses the engine default.
	Timeout int `yaml:"timeout"`
}

type DebugArgs struct {
	Msg string `yaml:"msg"`
	Var string `yaml:"var"`
}

const (
	ModuleShell   = "shell"
	ModuleCommand = "command"
	ModuleDebug   = "debug"
	ModuleSetFact = "set_fact"
)

// Module returns the name of the module the task runs.
func (t Task) Module() string {
	switch {
	case t.Shell != "":
		return ModuleShell
	case t.Command != "":
		return ModuleCommand
	case t.Debug != nil:
		return ModuleDebug
	default:
		return ModuleSetFact
	}
}

// DisplayName is the task name shown in banners and events.
func (t Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}

	return t.Module()
}

// ParsePlaybook validates raw YAML against the playbook schema and decodes it.
func ParsePlaybook(raw []byte) (Playbook, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlaybook, err)
	}

	if err := validatePlaybook(doc); err != nil {
		return nil, err
	}

	var playbook Playbook
	if err := yaml.Unmarshal(raw, &playbook); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlaybook, err)
	}

	return playbook, nil
}
