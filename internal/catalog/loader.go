package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// catalogFile is the document shape of a catalog file:
//
//	tables:
//	  - name: students
//	    source: "students*.csv"
//	    columns:
//	      - {source: STUDENT_ID, target: student_id, type: text, rules: [trim]}
type catalogFile struct {
	Tables []TableConfig `koanf:"tables"`
}

// LoadFile reads table configurations from a YAML (.yaml, .yml) or TOML
// (.toml) catalog file. The result is not validated; pass it to NewRegistry.
func LoadFile(path string) ([]TableConfig, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("catalog file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}

	var doc catalogFile
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("catalog %s defines no tables", path)
	}

	return doc.Tables, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return tomlParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (use .yaml, .yml, or .toml)", filepath.Ext(path))
	}
}

// tomlParser adapts BurntSushi/toml to the koanf.Parser interface.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if _, err := toml.Decode(string(b), &out); err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("toml: %s", perr.ErrorWithPosition())
		}
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return toml.Marshal(m)
}
