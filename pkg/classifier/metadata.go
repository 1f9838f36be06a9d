package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultImageSize is the square input size used when metadata omits it.
const DefaultImageSize = 224

// Metadata is the label description published next to the model.
type Metadata struct {
	Labels         []string `json:"labels"`
	ImageSize      int      `json:"imageSize"`
	ModelName      string   `json:"modelName"`
	TFJSVersion    string   `json:"tfjsVersion"`
	TMVersion      string   `json:"tmVersion"`
	PackageName    string   `json:"packageName"`
	PackageVersion string   `json:"packageVersion"`
	TimeStamp      string   `json:"timeStamp"`
}

// ParseMetadata decodes and validates metadata.json.
func ParseMetadata(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	if len(meta.Labels) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidMetadata)
	}
	for i, l := range meta.Labels {
		if strings.TrimSpace(l) == "" {
			return nil, fmt.Errorf("%w: label %d is empty", ErrInvalidMetadata, i)
		}
	}

	if meta.ImageSize == 0 {
		meta.ImageSize = DefaultImageSize
	}
	if meta.ImageSize < 0 || meta.ImageSize > 4096 {
		return nil, fmt.Errorf("%w: imageSize %d out of range", ErrInvalidMetadata, meta.ImageSize)
	}

	return &meta, nil
}
