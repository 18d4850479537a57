// Package seed loads verification configurations from files at startup.
//
// Layout is <dir>/<tenant>/<name>.{yaml,yml,json}; each file holds one
// configuration document. YAML mappings keep their key order, so transitions
// are evaluated in the order they were written.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"idverify/internal/identityverification/management"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/prehook"
	"idverify/pkg/platform/sentinel"
)

// Store receives seeded configurations.
type Store interface {
	Create(ctx context.Context, cfg *models.Configuration) error
}

// Load creates every configuration found under dir. Configurations whose
// type already exists for the tenant are skipped, so reloading is harmless.
// Each file must pass the same validation as the management API; the first
// invalid file stops the load.
func Load(ctx context.Context, dir string, store Store, prehooks *prehook.Validator, logger *slog.Logger, now time.Time) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tenants, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read seed dir: %w", err)
	}

	created := 0
	for _, tenant := range tenants {
		if !tenant.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, tenant.Name()))
		if err != nil {
			return created, fmt.Errorf("read tenant seed dir %s: %w", tenant.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !supported(f.Name()) {
				continue
			}
			path := filepath.Join(dir, tenant.Name(), f.Name())
			cfg, err := ParseFile(path)
			if err != nil {
				return created, err
			}
			cfg.TenantID = tenant.Name()
			if cfg.ID == "" {
				cfg.ID = uuid.NewString()
			}
			if msgs := management.Validate(cfg, prehooks); len(msgs) > 0 {
				return created, fmt.Errorf("seed %s: invalid configuration: %s", path, strings.Join(msgs, "; "))
			}
			cfg.CreatedAt, cfg.UpdatedAt = now, now

			if err := store.Create(ctx, cfg); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					logger.InfoContext(ctx, "seed configuration already present",
						"tenant_id", cfg.TenantID, "type", cfg.Type)
					continue
				}
				return created, fmt.Errorf("seed %s: %w", path, err)
			}
			created++
		}
	}
	return created, nil
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ParseFile decodes one configuration file.
func ParseFile(path string) (*models.Configuration, error) {
	// #nosec G304 -- path comes from the operator-configured seed directory.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return decode(path, data)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := writeJSON(&buf, &root); err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return decode(path, buf.Bytes())
}

func decode(path string, data []byte) (*models.Configuration, error) {
	var cfg models.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.Type == "" {
		return nil, fmt.Errorf("decode %s: type is required", path)
	}
	return &cfg, nil
}

// writeJSON renders a YAML node tree as JSON, preserving mapping order.
func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(n.Content[i].Value)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		return writeScalar(buf, n)
	}
	return fmt.Errorf("unsupported yaml node at line %d", n.Line)
}

func writeScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return err
		}
		buf.WriteString(strconv.FormatBool(b))
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return err
		}
		out, err := json.Marshal(f)
		if err != nil {
			return err
		}
		buf.Write(out)
	default:
		out, err := json.Marshal(n.Value)
		if err != nil {
			return err
		}
		buf.Write(out)
	}
	return nil
}
