package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"docbreak/internal/crypto"
	"docbreak/internal/models"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// Settings are the user-editable overrides saved in settings.json. Keys are
// stored sealed.
type Settings struct {
	OpenRouterKey string            `json:"openrouter_key,omitempty"`
	ProviderKeys  map[string]string `json:"provider_keys,omitempty"`
	Models        map[string]string `json:"models,omitempty"` // task → model id
}

// LoadSettings reads and unseals path. A missing file yields empty settings.
func LoadSettings(path string, sealer *crypto.Sealer) (*Settings, error) {
	s := &Settings{ProviderKeys: map[string]string{}, Models: map[string]string{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if s.OpenRouterKey, err = sealer.Open(s.OpenRouterKey); err != nil {
		return nil, eris.Wrap(err, "openrouter key")
	}
	for id, k := range s.ProviderKeys {
		plain, err := sealer.Open(k)
		if err != nil {
			return nil, eris.Wrapf(err, "%s key", id)
		}
		s.ProviderKeys[id] = plain
	}
	if s.ProviderKeys == nil {
		s.ProviderKeys = map[string]string{}
	}
	if s.Models == nil {
		s.Models = map[string]string{}
	}
	return s, nil
}

// SaveSettings seals the keys in s and writes path.
func SaveSettings(path string, s *Settings, sealer *crypto.Sealer) error {
	out := Settings{ProviderKeys: map[string]string{}, Models: s.Models}
	var err error
	if out.OpenRouterKey, err = sealer.Seal(s.OpenRouterKey); err != nil {
		return eris.Wrap(err, "seal openrouter key")
	}
	for id, k := range s.ProviderKeys {
		if k == "" {
			continue
		}
		if out.ProviderKeys[id], err = sealer.Seal(k); err != nil {
			return eris.Wrapf(err, "seal %s key", id)
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Apply overlays saved settings onto c. Saved values win over the environment.
func (c *Config) Apply(s *Settings) {
	if s == nil {
		return
	}
	if s.OpenRouterKey != "" {
		c.OpenRouterKey = s.OpenRouterKey
	}
	for id, k := range s.ProviderKeys {
		if k != "" {
			c.ProviderKeys[id] = k
		}
	}
	for task, m := range s.Models {
		t, err := models.ParseTask(task)
		if err != nil || m == "" {
			continue
		}
		c.ModelOverrides[t] = m
	}
}

// WritePreset merges a preset's model variables into the .env file at path,
// keeping every other variable already there.
func WritePreset(path string, p models.Preset) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return eris.Wrapf(err, "read %s", path)
		}
		vars = map[string]string{}
	}
	for k, v := range p.EnvVars() {
		vars[k] = v
	}
	if err := godotenv.Write(vars, path); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}
