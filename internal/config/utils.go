package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads typed values from the process environment. Unset keys take the
// default; set but unparsable keys are remembered and reported by err.
type env struct {
	bad []error
}

func lookup[T any](e *env, key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		e.bad = append(e.bad, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return def
	}
	return v
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	return lookup(e, key, def, strconv.Atoi)
}

func (e *env) float(key string, def float64) float64 {
	return lookup(e, key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func (e *env) bool(key string, def bool) bool {
	return lookup(e, key, def, strconv.ParseBool)
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	return lookup(e, key, def, time.ParseDuration)
}

// list splits a comma separated value, dropping blanks. A value with no
// entries falls back to def.
func (e *env) list(key string, def []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (e *env) err() error {
	return errors.Join(e.bad...)
}
