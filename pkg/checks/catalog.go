package checks

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed docs.yaml
var docsYAML []byte

type catalog struct {
	Checks map[string]struct {
		Sections []Section `yaml:"sections"`
	} `yaml:"checks"`
}

var loadCatalog = sync.OnceValues(func() (map[string][]Section, error) {
	return parseCatalog(docsYAML)
})

func parseCatalog(data []byte) (map[string][]Section, error) {
	var c catalog

	err := yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("parse check documentation: %w", err)
	}

	docs := make(map[string][]Section, len(c.Checks))
	for id, entry := range c.Checks {
		docs[id] = entry.Sections
	}

	return docs, nil
}
