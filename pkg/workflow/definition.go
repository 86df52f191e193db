package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/baton/pkg/errors"
)

// ParseDefinition parses a YAML workflow definition.
//
// Minimal definition:
//
//	name: Restart API
//	steps:
//	  - type: command
//	    command: "systemctl restart api"
//	  - type: prompt
//	    message: "Check the dashboard before closing the incident"
//
// The id is derived from the name when omitted. The parsed workflow is
// validated before being returned.
func ParseDefinition(data []byte) (*Workflow, error) {
	return parseDefinition(data, "")
}

// LoadDefinitionFile reads and parses a workflow definition file. When the
// definition names neither id nor name, both are derived from the file's
// base name.
func LoadDefinitionFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workflow definition %s", path)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	wf, err := parseDefinition(data, base)
	if err != nil {
		return nil, errors.Wrapf(err, "loading workflow definition %s", path)
	}
	return wf, nil
}

func parseDefinition(data []byte, fallbackName string) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}

	wf.applyDefaults(fallbackName)

	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}

	return &wf, nil
}

// applyDefaults fills the name and id when the definition omits them.
func (w *Workflow) applyDefaults(fallbackName string) {
	if w.Name == "" {
		w.Name = fallbackName
	}
	if w.ID == "" {
		w.ID = slugify(w.Name)
	}
	if w.Name == "" {
		w.Name = w.ID
	}
}

// slugify turns a workflow name into a registry id: lowercase, runs of
// non-alphanumerics collapsed to single hyphens.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // trim leading hyphens
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
