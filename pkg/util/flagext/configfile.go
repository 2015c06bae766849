package flagext

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// ConfigFiles is a list of YAML configuration files, applied in order. Later
// files override earlier ones.
type ConfigFiles []string

// String implements flag.Value
// Format: file1.yaml,file2.yaml
func (cfgFiles *ConfigFiles) String() string {
	return strings.Join(*cfgFiles, ",")
}

// Set implements flag.Value. It accepts a single path or a comma separated
// list of paths.
func (cfgFiles *ConfigFiles) Set(value string) error {
	for _, path := range strings.Split(value, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			return fmt.Errorf("empty config file path in %q", value)
		}
		*cfgFiles = append(*cfgFiles, path)
	}
	return nil
}

// Apply strictly unmarshals every file into dst. Unknown fields are errors.
func (cfgFiles ConfigFiles) Apply(dst interface{}) error {
	for _, path := range cfgFiles {
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.UnmarshalStrict(buf, dst); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}
