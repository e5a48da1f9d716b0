package ingest

import (
	"fmt"

	"github.com/poiesic/carepipe/config"
)

// NewAdapter creates an adapter from its configuration section. The "type"
// key selects the implementation; "file" is the only built-in.
func NewAdapter(cfg map[string]any) (Adapter, error) {
	adapterType := config.String(cfg, "type", "file")
	switch adapterType {
	case "file":
		return NewFileAdapter(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAdapter, adapterType)
	}
}

// NewIngester creates an ingester from its configuration section. The
// "format" key selects the implementation; "json" is the only built-in.
func NewIngester(cfg map[string]any) (Ingester, error) {
	format := config.String(cfg, "format", "json")
	switch format {
	case "json":
		return NewJSONIngester(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIngester, format)
	}
}
