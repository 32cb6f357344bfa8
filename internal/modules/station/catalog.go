// README: Station catalog file loader (YAML/JSON via koanf, validated on load).
package station

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

type catalogFile struct {
	Stations []Station `koanf:"stations" yaml:"stations" validate:"dive"`
}

// LoadCatalog reads a station catalog of the form
//
//	stations:
//	  - id: ameerpet
//	    name: Ameerpet Metro
//	    location: {lat: 17.3005, lng: 78.3992}
//	    radius_m: 500
func LoadCatalog(path string) ([]Station, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported catalog format: %s", ext)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	var cat catalogFile
	if err := k.UnmarshalWithConf("", &cat, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", path, err)
	}
	if err := validator.New().Struct(cat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStation, err)
	}
	for _, s := range cat.Stations {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return cat.Stations, nil
}

// WriteCatalog encodes stations in the format LoadCatalog reads.
func WriteCatalog(w io.Writer, stations []Station) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogFile{Stations: stations}); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return enc.Close()
}
