package logging

import (
	"regexp"
	"sync"

	"github.com/pkg/errors"
)

var globalRegistry = newRegistry()

// Registry maps logger names to levels through pattern configs. Loggers created with a registry
// consult it on every level check, so a config change applies without re-creating loggers.
type Registry struct {
	mu        sync.RWMutex
	logConfig []LoggerPatternConfig
	patterns  []levelPattern
	// resolved caches levelFor results per name until the next UpdateConfig.
	resolved map[string]resolvedLevel
}

type levelPattern struct {
	matcher *regexp.Regexp
	level   Level
}

type resolvedLevel struct {
	level   Level
	matched bool
}

func newRegistry() *Registry {
	return &Registry{resolved: make(map[string]resolvedLevel)}
}

// GlobalRegistry returns the registry that NewBlankLogger attaches loggers to.
func GlobalRegistry() *Registry {
	return globalRegistry
}

// UpdateConfig replaces the pattern configuration. Invalid patterns are reported to
// `errorLogger` and skipped; an unknown level rejects the whole config.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	valid := make([]LoggerPatternConfig, 0, len(logConfig))
	patterns := make([]levelPattern, 0, len(logConfig))
	for _, lpc := range logConfig {
		if !validatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}
		level, err := LevelFromString(lpc.Level)
		if err != nil {
			return errors.Wrapf(err, "pattern %q", lpc.Pattern)
		}
		valid = append(valid, lpc)
		patterns = append(patterns, levelPattern{
			matcher: regexp.MustCompile(buildRegexFromPattern(lpc.Pattern)),
			level:   level,
		})
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = valid
	lr.patterns = patterns
	lr.resolved = make(map[string]resolvedLevel)
	return nil
}

// levelFor returns the level of the last pattern matching name.
func (lr *Registry) levelFor(name string) (Level, bool) {
	lr.mu.RLock()
	res, ok := lr.resolved[name]
	lr.mu.RUnlock()
	if ok {
		return res.level, res.matched
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	res = resolvedLevel{}
	for _, p := range lr.patterns {
		if p.matcher.MatchString(name) {
			res = resolvedLevel{level: p.level, matched: true}
		}
	}
	lr.resolved[name] = res
	return res.level, res.matched
}

func (lr *Registry) getCurrentConfig() []LoggerPatternConfig {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	if len(lr.logConfig) == 0 {
		return nil
	}
	return lr.logConfig
}
