package sqlite

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// encodeProducts compresses products using gob encoding and gzip compression.
func encodeProducts(p *l5products.Products) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(p); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeProducts decompresses and decodes products from a gob+gzip blob.
func decodeProducts(blob []byte) (*l5products.Products, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty products blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	p := &l5products.Products{}
	if err := gob.NewDecoder(gz).Decode(p); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return p, nil
}
