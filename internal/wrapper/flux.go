// Package wrapper generates Flux jobspec documents that embed a rendered
// job script, for platforms that submit wrapped jobs as a version-1
// jobspec instead of a plain script file.
package wrapper

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// scriptFileMode is the embedded script's file mode (regular file,
// rwx------) as Flux expects it, in decimal.
const scriptFileMode = 33216

// Resource is one node of the jobspec resource tree.
type Resource struct {
	Type      string     `yaml:"type"`
	Label     string     `yaml:"label,omitempty"`
	Count     int        `yaml:"count"`
	Unit      string     `yaml:"unit,omitempty"`
	Exclusive bool       `yaml:"exclusive,omitempty"`
	With      []Resource `yaml:"with,omitempty"`
}

// Task maps a command onto a resource slot.
type Task struct {
	Command []string       `yaml:"command"`
	Slot    string         `yaml:"slot"`
	Count   map[string]int `yaml:"count"`
}

// SlotSpec describes one resource slot request.
type SlotSpec struct {
	Label        string // defaults to "task"
	Slots        int    // defaults to 1
	Nodes        int
	Cores        int
	Exclusive    bool
	MemPerNodeGB int
	MemPerCoreGB int
}

// TaskSpec describes one task request. Exactly one of PerSlot/PerNode
// must be positive.
type TaskSpec struct {
	SlotLabel string // defaults to "task"
	PerSlot   int
	PerNode   int
}

// AttrSpec carries the system attributes of the jobspec, including the
// rendered script text to embed.
type AttrSpec struct {
	Duration      string
	Cwd           string
	JobName       string
	OutputFile    string
	ErrorFile     string
	ScriptContent string
}

// Jobspec accumulates resources, tasks and attributes, then serializes to
// the version-1 jobspec YAML.
type Jobspec struct {
	resources []Resource
	tasks     []Task
	attrs     *AttrSpec
}

// New returns an empty jobspec builder.
func New() *Jobspec {
	return &Jobspec{}
}

// AddSlot appends a slot resource and returns its index. Heterogeneous
// jobs (multiple differing slots) are accepted; Flux resolves them.
func (j *Jobspec) AddSlot(spec SlotSpec) (int, error) {
	if spec.Nodes == 0 && spec.Cores == 0 {
		return 0, errors.New("no resources to add")
	}
	if spec.Exclusive && spec.Nodes == 0 {
		return 0, errors.New("exclusive flag requires node resources")
	}
	if spec.Label == "" {
		spec.Label = "task"
	}
	if spec.Slots == 0 {
		spec.Slots = 1
	}

	slot := Resource{Type: "slot", Label: spec.Label, Count: spec.Slots}

	var core *Resource
	if spec.Cores > 0 {
		core = &Resource{Type: "core", Count: spec.Cores}
		if spec.MemPerCoreGB > 0 {
			core.With = append(core.With, Resource{Type: "memory", Count: spec.MemPerCoreGB, Unit: "GB"})
		}
	}

	if spec.Nodes > 0 {
		node := Resource{Type: "node", Count: spec.Nodes, Exclusive: spec.Exclusive}
		if spec.MemPerNodeGB > 0 {
			node.With = append(node.With, Resource{Type: "memory", Count: spec.MemPerNodeGB, Unit: "GB"})
		}
		if core != nil {
			node.With = append(node.With, *core)
		}
		slot.With = append(slot.With, node)
	} else if core != nil {
		slot.With = append(slot.With, *core)
	}

	j.resources = append(j.resources, slot)
	return len(j.resources) - 1, nil
}

// AddTask appends a task bound to a slot label and returns its index.
func (j *Jobspec) AddTask(spec TaskSpec) (int, error) {
	if spec.PerSlot > 0 && spec.PerNode > 0 {
		return 0, errors.New("cannot set both per-slot and per-node counts")
	}
	if spec.PerSlot == 0 && spec.PerNode == 0 {
		return 0, errors.New("either per-slot or per-node count must be specified")
	}
	if spec.SlotLabel == "" {
		spec.SlotLabel = "task"
	}

	count := map[string]int{}
	if spec.PerSlot > 0 {
		count["per_slot"] = spec.PerSlot
	} else {
		count["per_node"] = spec.PerNode
	}

	j.tasks = append(j.tasks, Task{
		Command: []string{"{{tmpdir}}/script"},
		Slot:    spec.SlotLabel,
		Count:   count,
	})
	return len(j.tasks) - 1, nil
}

// SetAttributes records the system attributes. The script content is
// embedded verbatim as a literal block scalar at generation time.
func (j *Jobspec) SetAttributes(attrs AttrSpec) {
	j.attrs = &attrs
}

// literalString marshals as a YAML literal block scalar so the embedded
// script survives byte-for-byte.
type literalString string

func (s literalString) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.LiteralStyle,
		Value: string(s),
	}, nil
}

type outputFile struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type systemAttrs struct {
	Duration string `yaml:"duration"`
	Cwd      string `yaml:"cwd"`
	Job      struct {
		Name string `yaml:"name"`
	} `yaml:"job"`
	Shell struct {
		Options struct {
			Output struct {
				Stdout outputFile `yaml:"stdout"`
				Stderr outputFile `yaml:"stderr"`
			} `yaml:"output"`
		} `yaml:"options"`
	} `yaml:"shell"`
	Files struct {
		Script struct {
			Mode     int           `yaml:"mode"`
			Data     literalString `yaml:"data"`
			Encoding string        `yaml:"encoding"`
		} `yaml:"script"`
	} `yaml:"files"`
}

type document struct {
	Resources  []Resource `yaml:"resources"`
	Tasks      []Task     `yaml:"tasks"`
	Attributes struct {
		System systemAttrs `yaml:"system"`
	} `yaml:"attributes"`
	Version int `yaml:"version"`
}

// Generate serializes the jobspec to YAML.
func (j *Jobspec) Generate() (string, error) {
	if j.attrs == nil {
		return "", errors.New("jobspec attributes not set")
	}

	var doc document
	doc.Resources = j.resources
	doc.Tasks = j.tasks
	doc.Version = 1

	sys := &doc.Attributes.System
	sys.Duration = j.attrs.Duration
	sys.Cwd = j.attrs.Cwd
	sys.Job.Name = j.attrs.JobName
	sys.Shell.Options.Output.Stdout = outputFile{Type: "file", Path: j.attrs.OutputFile}
	sys.Shell.Options.Output.Stderr = outputFile{Type: "file", Path: j.attrs.ErrorFile}
	sys.Files.Script.Mode = scriptFileMode
	sys.Files.Script.Data = literalString(j.attrs.ScriptContent)
	sys.Files.Script.Encoding = "utf-8"

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to encode jobspec: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize jobspec: %w", err)
	}
	return b.String(), nil
}
