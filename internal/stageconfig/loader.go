package stageconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML file on top of Default() and validates it once
// KnownFields(true): 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read stage config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// Parse decodes and validates YAML bytes
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// 파일에 명시된 값만 덮어씀. version은 반드시 파일에 있어야 함
	cfg.Version = 0

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode stage config: %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.SpiderGate.OnMissing = strings.ToLower(strings.TrimSpace(cfg.SpiderGate.OnMissing))
	cfg.StageLogic.Evaluation = strings.ToLower(strings.TrimSpace(cfg.StageLogic.Evaluation))
	if cfg.StageLogic.Evaluation == "" {
		cfg.StageLogic.Evaluation = EvaluationPrecomputed
	}
	cfg.Universe.Country = strings.TrimSpace(cfg.Universe.Country)
}

// Hash generates SHA256 hash from Config (canonical JSON)
// json.Marshal은 map key를 정렬하므로 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Snapshot pins the configuration a batch run was produced with
type Snapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml,omitempty"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewSnapshot creates a snapshot for audit
func NewSnapshot(cfg *Config, yamlData []byte) (*Snapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ConfigHash: hash,
		ConfigYAML: string(yamlData),
		Version:    cfg.Version,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
