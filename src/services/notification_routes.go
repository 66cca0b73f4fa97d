package services

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/khabaroff/shop-admin-console/src/models"
	"gopkg.in/yaml.v3"
)

//go:embed notification_routes.yaml
var defaultRoutesYAML []byte

// RouteRule maps notifications of a type, optionally with a message marker,
// to a console path
type RouteRule struct {
	Type       models.NotificationType `yaml:"type"`
	Contains   string                  `yaml:"contains"`
	IgnoreCase bool                    `yaml:"ignore_case"`
	Path       string                  `yaml:"path"`
}

func (r RouteRule) matches(n models.Notification) bool {
	if r.Type != "" && r.Type != n.Type {
		return false
	}
	if r.Contains == "" {
		return true
	}
	if r.IgnoreCase {
		return strings.Contains(strings.ToLower(n.Message), strings.ToLower(r.Contains))
	}
	return strings.Contains(n.Message, r.Contains)
}

// NotificationRouter resolves where a click on a notification leads
type NotificationRouter struct {
	Default string            `yaml:"default"`
	Targets map[string]string `yaml:"targets"`
	Rules   []RouteRule       `yaml:"rules"`
}

// DefaultNotificationRouter returns the built-in routing table
func DefaultNotificationRouter() *NotificationRouter {
	r, err := ParseNotificationRoutes(defaultRoutesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded notification routes are invalid: %v", err))
	}
	return r
}

// LoadNotificationRouter reads a routing table from path, or returns the
// built-in one when path is empty
func LoadNotificationRouter(path string) (*NotificationRouter, error) {
	if path == "" {
		return DefaultNotificationRouter(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification routes: %w", err)
	}
	return ParseNotificationRoutes(data)
}

// ParseNotificationRoutes decodes and validates a YAML routing table
func ParseNotificationRoutes(data []byte) (*NotificationRouter, error) {
	var r NotificationRouter
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse notification routes: %w", err)
	}
	if !strings.HasPrefix(r.Default, "/") {
		return nil, errors.New("notification routes: default must be an absolute path")
	}
	for target, path := range r.Targets {
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("notification routes: target %q has non-absolute path %q", target, path)
		}
	}
	for i, rule := range r.Rules {
		if !strings.HasPrefix(rule.Path, "/") {
			return nil, fmt.Errorf("notification routes: rule %d has non-absolute path %q", i, rule.Path)
		}
	}
	return &r, nil
}

// Route returns the console path for n. A known structured target wins;
// otherwise the first matching rule, otherwise the default.
func (r *NotificationRouter) Route(n models.Notification) string {
	if n.Target != "" {
		if path, ok := r.Targets[n.Target]; ok {
			return path
		}
	}
	for _, rule := range r.Rules {
		if rule.matches(n) {
			return rule.Path
		}
	}
	return r.Default
}

// Paths lists every distinct path a notification can lead to
func (r *NotificationRouter) Paths() []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	add(r.Default)
	targets := make([]string, 0, len(r.Targets))
	for target := range r.Targets {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		add(r.Targets[target])
	}
	for _, rule := range r.Rules {
		add(rule.Path)
	}
	return paths
}
