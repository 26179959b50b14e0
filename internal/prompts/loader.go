// Package prompts provides a loader for externalized LLM prompt templates.
// Prompts are stored as JSON files and embedded at compile time; a prompt set
// can be overridden from a file on disk.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// GenerationFile holds the system message and ordered instructions for document generation.
const GenerationFile = "generation.json"

// Set is a system message followed by ordered instruction messages.
type Set struct {
	System       string   `json:"system"`
	Instructions []string `json:"instructions"`
}

// cache stores parsed prompt files to avoid repeated JSON parsing
var (
	cache   = make(map[string]map[string]json.RawMessage)
	cacheMu sync.RWMutex
)

// Get retrieves a string prompt by filename and key.
// The filename should not include the path (e.g., "generation.json").
// Returns an error if the file or key is not found.
func Get(filename, key string) (string, error) {
	raw, err := lookup(filename, key)
	if err != nil {
		return "", err
	}

	var prompt string
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return "", fmt.Errorf("prompt key %q in %s is not a string: %w", key, filename, err)
	}
	return prompt, nil
}

// GetList retrieves an ordered list of prompts by filename and key.
func GetList(filename, key string) ([]string, error) {
	raw, err := lookup(filename, key)
	if err != nil {
		return nil, err
	}

	var prompts []string
	if err := json.Unmarshal(raw, &prompts); err != nil {
		return nil, fmt.Errorf("prompt key %q in %s is not a list: %w", key, filename, err)
	}
	return prompts, nil
}

// MustGet retrieves a prompt by filename and key, panicking if not found.
// Use this for prompts that are required at initialization time.
func MustGet(filename, key string) string {
	prompt, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// Format replaces template placeholders in the form {{.Key}} with values from data.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// Generation returns the embedded generation prompt set.
func Generation() (*Set, error) {
	system, err := Get(GenerationFile, "system")
	if err != nil {
		return nil, err
	}
	instructions, err := GetList(GenerationFile, "instructions")
	if err != nil {
		return nil, err
	}
	return &Set{System: system, Instructions: instructions}, nil
}

// LoadSet reads a prompt set from disk. A .json file must have the Set shape;
// any other file is read as plain text, one instruction per blank-line separated paragraph.
func LoadSet(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instructions file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var set Set
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("failed to parse instructions file %s: %w", path, err)
		}
		if len(set.Instructions) == 0 && set.System == "" {
			return nil, fmt.Errorf("instructions file %s is empty", path)
		}
		return &set, nil
	}

	set := &Set{}
	for _, paragraph := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n\n") {
		if p := strings.TrimSpace(paragraph); p != "" {
			set.Instructions = append(set.Instructions, p)
		}
	}
	if len(set.Instructions) == 0 {
		return nil, fmt.Errorf("instructions file %s is empty", path)
	}
	return set, nil
}

// Merge returns a set where non-empty fields of override replace those of s.
func (s *Set) Merge(override *Set) *Set {
	merged := &Set{System: s.System, Instructions: s.Instructions}
	if override == nil {
		return merged
	}
	if override.System != "" {
		merged.System = override.System
	}
	if len(override.Instructions) > 0 {
		merged.Instructions = override.Instructions
	}
	return merged
}

// Messages renders the set as an ordered message list with data substituted.
func (s *Set) Messages(data map[string]string) []string {
	messages := make([]string, 0, len(s.Instructions))
	for _, instruction := range s.Instructions {
		messages = append(messages, Format(instruction, data))
	}
	return messages
}

func lookup(filename, key string) (json.RawMessage, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return nil, err
	}

	raw, exists := prompts[key]
	if !exists {
		return nil, fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return raw, nil
}

// loadFile loads and caches a prompt file.
func loadFile(filename string) (map[string]json.RawMessage, error) {
	cacheMu.RLock()
	if prompts, exists := cache[filename]; exists {
		cacheMu.RUnlock()
		return prompts, nil
	}
	cacheMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var prompts map[string]json.RawMessage
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = prompts
	cacheMu.Unlock()

	return prompts, nil
}

// ClearCache clears the prompt cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]json.RawMessage)
	cacheMu.Unlock()
}

// List returns all available prompt keys in a file.
func List(filename string) ([]string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(prompts))
	for key := range prompts {
		keys = append(keys, key)
	}
	return keys, nil
}
