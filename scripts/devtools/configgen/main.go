// Command configgen renders per-environment service configs from a base
// YAML file and a profile of overrides. It works on yaml.Node trees so the
// rendered files keep the key order and comments of their base.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Profile struct {
	OutputDir string                    `yaml:"outputDir"`
	Env       string                    `yaml:"env"`
	Auth      AuthProfile               `yaml:"auth"`
	Services  map[string]ServiceProfile `yaml:"services"`
}

// AuthProfile is stamped into every rendered service.
type AuthProfile struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

type ServiceProfile struct {
	Base   string `yaml:"base"`
	Output string `yaml:"output"`
	// Overrides is merged into the base mapping key by key.
	Overrides yaml.Node `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/dev-profile.yaml", "profile to render")
	outputDir := flag.String("output-dir", "", "directory for rendered configs, overrides the profile")
	flag.Parse()

	written, err := run(*profilePath, *outputDir)
	for _, path := range written {
		fmt.Println(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(profilePath, outputDir string) ([]string, error) {
	abs, err := filepath.Abs(profilePath)
	if err != nil {
		return nil, err
	}
	profile, err := readProfile(abs)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return nil, errors.New("profile has no outputDir")
	}
	profile.OutputDir = under(dir, profile.OutputDir)

	names := make([]string, 0, len(profile.Services))
	for name := range profile.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		path, err := render(profile, dir, profile.Services[name])
		if err != nil {
			return written, fmt.Errorf("render %s: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func readProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if len(p.Services) == 0 {
		return nil, fmt.Errorf("profile %s lists no services", path)
	}
	return &p, nil
}

func render(profile *Profile, dir string, svc ServiceProfile) (string, error) {
	if svc.Base == "" {
		return "", errors.New("base is required")
	}
	base := under(dir, svc.Base)
	data, err := os.ReadFile(base)
	if err != nil {
		return "", err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", base, err)
	}
	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return "", fmt.Errorf("%s is not a mapping", base)
	}

	if svc.Overrides.Kind != 0 {
		if svc.Overrides.Kind != yaml.MappingNode {
			return "", errors.New("overrides must be a mapping")
		}
		merge(root, &svc.Overrides)
	}
	if profile.Env != "" {
		set(root, profile.Env, "server", "env")
	}
	if profile.Auth.JWTSecret != "" {
		set(root, profile.Auth.JWTSecret, "auth", "jwtSecret")
	}
	if profile.Auth.JWTIssuer != "" {
		set(root, profile.Auth.JWTIssuer, "auth", "jwtIssuer")
	}
	if err := refuseMockInProduction(root); err != nil {
		return "", err
	}

	out := svc.Output
	if out == "" {
		out = filepath.Base(base)
	}
	out = under(profile.OutputDir, out)
	return out, write(out, &doc)
}

// refuseMockInProduction mirrors the check the service runs at startup so a
// bad profile fails here instead of at deploy time.
func refuseMockInProduction(root *yaml.Node) error {
	env := scalar(root, "server", "env")
	backend := scalar(root, "executor", "backend")
	if strings.EqualFold(env, "production") && strings.EqualFold(backend, "mock") {
		return errors.New("mock execution backend is not allowed in production")
	}
	return nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return nil
}

// lookup returns the value node for key in a mapping node.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(root *yaml.Node, path ...string) string {
	n := root
	for _, key := range path {
		if n = lookup(n, key); n == nil {
			return ""
		}
	}
	if n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

// merge copies src into dst. Nested mappings merge recursively; anything else
// replaces the destination value while keeping its comments.
func merge(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		cur := lookup(dst, key.Value)
		switch {
		case cur == nil:
			dst.Content = append(dst.Content, key, val)
		case cur.Kind == yaml.MappingNode && val.Kind == yaml.MappingNode:
			merge(cur, val)
		default:
			head, line, foot := cur.HeadComment, cur.LineComment, cur.FootComment
			*cur = *val
			cur.HeadComment, cur.LineComment, cur.FootComment = head, line, foot
		}
	}
}

// set writes a string scalar at path, creating or replacing intermediate
// mappings.
func set(root *yaml.Node, value string, path ...string) {
	n := root
	for _, key := range path[:len(path)-1] {
		next := lookup(n, key)
		switch {
		case next == nil:
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			n.Content = append(n.Content, str(key), next)
		case next.Kind != yaml.MappingNode:
			*next = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		n = next
	}
	last := path[len(path)-1]
	if v := lookup(n, last); v != nil {
		v.Kind, v.Tag, v.Value, v.Style, v.Content = yaml.ScalarNode, "!!str", value, 0, nil
		return
	}
	n.Content = append(n.Content, str(last), str(value))
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func write(path string, doc *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func under(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
