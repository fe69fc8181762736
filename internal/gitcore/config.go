package gitcore

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds the subset of repository configuration the tool inspects.
type Config struct {
	ObjectFormat string   // extensions.objectformat, "" means sha1
	Remotes      []string // configured remote names, in file order
}

// ReadConfig parses the repository's config file. A missing file yields an
// empty Config, which is what a freshly initialized repository has.
func (r *Repository) ReadConfig() (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(filepath.Join(r.gitDir, "config"))
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}

	var section, subsection string
	seenRemotes := make(map[string]bool)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section, subsection = parseSectionLine(line)
			if section == "remote" && subsection != "" && !seenRemotes[subsection] {
				seenRemotes[subsection] = true
				config.Remotes = append(config.Remotes, subsection)
			}
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		if section == "extensions" && strings.EqualFold(key, "objectformat") {
			config.ObjectFormat = value
		}
	}

	return config, nil
}

// parseSectionLine splits a section header like [remote "origin"] into its
// name and optional subsection.
func parseSectionLine(line string) (string, string) {
	section := strings.Trim(line, "[]")
	parts := strings.SplitN(section, " ", 2)

	name := strings.ToLower(parts[0])
	subsection := ""
	if len(parts) > 1 {
		subsection = strings.Trim(parts[1], "\"")
	}
	return name, subsection
}
