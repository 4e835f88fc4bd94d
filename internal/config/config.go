// Package config loads printer.cfg-style INI configuration and hands out
// typed, access-tracked accessors, following the ConfigWrapper section
// accessor pattern (required-unless-defaulted, with min/max clamping and
// an access-tracking set used for M503-style "unused option" reporting).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// Raw holds parsed INI sections: section -> option -> value.
type Raw struct {
	sections map[string]map[string]string
	order    []string
}

func ParseINI(path string) (*Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := &Raw{sections: map[string]map[string]string{}}
	scanner := bufio.NewScanner(f)
	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := r.sections[section]; !ok {
				r.sections[section] = map[string]string{}
				r.order = append(r.order, section)
			}
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 || section == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		r.sections[section][key] = strings.TrimSpace(parts[1])
	}
	return r, scanner.Err()
}

// ParseYAMLOverlay loads a YAML fixture (used by tests/CI in place of a
// full printer.cfg) into the same section/option shape as ParseINI.
func ParseYAMLOverlay(path string) (*Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	r := &Raw{sections: map[string]map[string]string{}}
	for section, opts := range doc {
		m := map[string]string{}
		for k, v := range opts {
			m[strings.ToLower(k)] = v
		}
		r.sections[section] = m
		r.order = append(r.order, section)
	}
	return r, nil
}

func (r *Raw) HasOption(section, option string) bool {
	s, ok := r.sections[section]
	if !ok {
		return false
	}
	_, ok = s[strings.ToLower(option)]
	return ok
}

func (r *Raw) Sections() []string { return append([]string{}, r.order...) }

// Wrapper is a single section's view into a Raw config, mirroring the
// ConfigWrapper section-scoped accessor pattern.
type Wrapper struct {
	raw     *Raw
	section string
	access  map[string]struct{}
}

func NewWrapper(raw *Raw, section string, access map[string]struct{}) *Wrapper {
	if access == nil {
		access = map[string]struct{}{}
	}
	return &Wrapper{raw: raw, section: section, access: access}
}

func (w *Wrapper) SectionName() string { return w.section }

func (w *Wrapper) track(option string) {
	w.access[strings.ToLower(w.section)+":"+strings.ToLower(option)] = struct{}{}
}

// Get returns the raw string value of option, or required==false's
// fallback def. Panics, like the reference ConfigWrapper, when the option
// is absent and no default was supplied — a startup-time configuration
// error, not a runtime command error.
func (w *Wrapper) Get(option string, def string, required bool) string {
	if !w.raw.HasOption(w.section, option) {
		if !required {
			w.track(option)
			return def
		}
		panic(fmt.Sprintf("option '%s' in section '%s' must be specified", option, w.section))
	}
	w.track(option)
	return w.raw.sections[w.section][strings.ToLower(option)]
}

func (w *Wrapper) GetFloat(option string, def float64, minv, maxv float64, required bool) float64 {
	if !w.raw.HasOption(w.section, option) {
		if !required {
			w.track(option)
			return def
		}
		panic(fmt.Sprintf("option '%s' in section '%s' must be specified", option, w.section))
	}
	raw := w.raw.sections[w.section][strings.ToLower(option)]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		panic(fmt.Sprintf("option '%s' in section '%s' is not a float: %v", option, w.section, err))
	}
	if minv != 0 && v < minv {
		panic(fmt.Sprintf("option '%s' in section '%s' must have minimum of %v", option, w.section, minv))
	}
	if maxv != 0 && v > maxv {
		panic(fmt.Sprintf("option '%s' in section '%s' must have maximum of %v", option, w.section, maxv))
	}
	w.track(option)
	return v
}

func (w *Wrapper) GetInt(option string, def int, minv, maxv int, required bool) int {
	if !w.raw.HasOption(w.section, option) {
		if !required {
			w.track(option)
			return def
		}
		panic(fmt.Sprintf("option '%s' in section '%s' must be specified", option, w.section))
	}
	raw := w.raw.sections[w.section][strings.ToLower(option)]
	v, err := strconv.Atoi(raw)
	if err != nil {
		panic(fmt.Sprintf("option '%s' in section '%s' is not an int: %v", option, w.section, err))
	}
	if minv != 0 && v < minv {
		panic(fmt.Sprintf("option '%s' in section '%s' must have minimum of %d", option, w.section, minv))
	}
	if maxv != 0 && v > maxv {
		panic(fmt.Sprintf("option '%s' in section '%s' must have maximum of %d", option, w.section, maxv))
	}
	w.track(option)
	return v
}

func (w *Wrapper) GetBool(option string, def bool, required bool) bool {
	if !w.raw.HasOption(w.section, option) {
		if !required {
			w.track(option)
			return def
		}
		panic(fmt.Sprintf("option '%s' in section '%s' must be specified", option, w.section))
	}
	raw := strings.ToLower(w.raw.sections[w.section][strings.ToLower(option)])
	w.track(option)
	return raw == "true" || raw == "1" || raw == "yes"
}

// UnusedOptions reports options present in the raw section but never read
// through a Wrapper accessor — fed into M503 diagnostics.
func UnusedOptions(raw *Raw, access map[string]struct{}) []string {
	var unused []string
	for section, opts := range raw.sections {
		for opt := range opts {
			key := strings.ToLower(section) + ":" + opt
			if _, ok := access[key]; !ok {
				unused = append(unused, key)
			}
		}
	}
	return unused
}
