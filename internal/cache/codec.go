// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	gojson "github.com/goccy/go-json"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// encodeArtifact serializes and zstd-compresses an artifact before it is
// handed to a shared backend, bounding the network/storage cost of large
// artifacts.
func encodeArtifact(a *dream.Artifact) ([]byte, error) {
	raw, err := gojson.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("cache: marshaling artifact: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: creating zstd encoder: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}

// decodeArtifact reverses encodeArtifact.
func decodeArtifact(compressed []byte) (*dream.Artifact, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: decompressing shared entry: %w", err)
	}

	var a dream.Artifact
	if err := gojson.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("cache: unmarshaling artifact: %w", err)
	}
	return &a, nil
}
