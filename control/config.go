// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe typed configuration with parent fallback and TOML loading.

package control

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Conf is a flat key/value store. Keys are dotted paths ("ufio.max_fds");
// a lookup that misses falls through to the parent chain.
type Conf struct {
	mu     sync.RWMutex
	name   string
	parent *Conf
	values map[string]any
}

// NewConf creates an empty configuration. parent may be nil.
func NewConf(name string, parent *Conf) *Conf {
	return &Conf{
		name:   name,
		parent: parent,
		values: make(map[string]any),
	}
}

func (c *Conf) Name() string  { return c.name }
func (c *Conf) Parent() *Conf { return c.parent }

// Set stores value under key in this configuration, shadowing any parent value.
func (c *Conf) Set(key string, value any) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// Delete removes key from this configuration only.
func (c *Conf) Delete(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// Lookup returns the value of key from this configuration or the nearest
// ancestor holding it.
func (c *Conf) Lookup(key string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.values[key]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// GetInt returns key as an int, or def when missing or not convertible.
func (c *Conf) GetInt(key string, def int) int {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// GetFloat returns key as a float64, or def.
func (c *Conf) GetFloat(key string, def float64) float64 {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return def
}

// GetString returns key as a string, or def. Non-string scalars are formatted.
func (c *Conf) GetString(key string, def string) string {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case int, int64, float64, bool:
		return fmt.Sprint(s)
	}
	return def
}

// GetBool returns key as a bool, or def.
func (c *Conf) GetBool(key string, def bool) bool {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if p, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return p
		}
	case int:
		return b != 0
	case int64:
		return b != 0
	}
	return def
}

// GetStrings returns key as a string list. A single string is split on commas.
func (c *Conf) GetStrings(key string, def []string) []string {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, ok := e.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(l, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return def
}

// Keys returns the sorted keys visible through this configuration.
func (c *Conf) Keys() []string {
	snap := c.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of all values visible through this configuration,
// children overriding ancestors.
func (c *Conf) Snapshot() map[string]any {
	var chain []*Conf
	for cur := c; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].mu.RLock()
		for k, v := range chain[i].values {
			out[k] = v
		}
		chain[i].mu.RUnlock()
	}
	return out
}

// Merge stores every entry of values, flattening nested tables into
// dotted keys.
func (c *Conf) Merge(values map[string]any) {
	flat := make(map[string]any)
	flatten("", values, flat)
	c.mu.Lock()
	for k, v := range flat {
		c.values[k] = v
	}
	c.mu.Unlock()
}

// Replace discards this configuration's own values and stores values.
func (c *Conf) Replace(values map[string]any) {
	flat := make(map[string]any)
	flatten("", values, flat)
	c.mu.Lock()
	c.values = flat
	c.mu.Unlock()
}

// LoadTOML parses TOML text into this configuration, replacing its own values.
func (c *Conf) LoadTOML(data string) error {
	values, err := ParseTOML(data)
	if err != nil {
		return err
	}
	c.Replace(values)
	return nil
}

// LoadFile parses a TOML file into this configuration, replacing its own values.
func (c *Conf) LoadFile(path string) error {
	values := make(map[string]any)
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	c.Replace(values)
	return nil
}

// ParseTOML decodes TOML text into a nested map.
func ParseTOML(data string) (map[string]any, error) {
	values := make(map[string]any)
	if _, err := toml.Decode(data, &values); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return values, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
