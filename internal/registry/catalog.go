// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadCatalogFile reads a JSON-encoded descriptor list from path, the
// on-disk form of the catalog an operator can edit without a restart
// (see Watch). The file is a plain JSON array of Descriptor objects.
func LoadCatalogFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read catalog file: %w", err)
	}
	var descriptors []Descriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("registry: parse catalog file: %w", err)
	}
	return descriptors, nil
}

// DefaultCatalog is the seeded model catalog. It mirrors the canonical
// configuration's model families: general-purpose reasoning/coding
// models plus one vision (OCR) model, each with a declared memory
// estimate and context window.
func DefaultCatalog() []Descriptor {
	return []Descriptor{
		{
			ID:            "qwen3-14b",
			Aliases:       []string{"default", "qwen3"},
			MemoryGB:      16,
			ContextWindow: 32768,
			AutoLoad:      true,
			Priority:      0,
			KernelKind:    KindText,
			Successor:     "deepseek-coder-v2",
		},
		{
			ID:            "deepseek-coder-v2",
			Aliases:       []string{"deepseek-coder"},
			MemoryGB:      18,
			ContextWindow: 16384,
			AutoLoad:      true,
			Priority:      1,
			KernelKind:    KindText,
			Successor:     "qwen3-14b",
		},
		{
			ID:            "c4ai-03-2025",
			Aliases:       []string{"vista-medical"},
			MemoryGB:      22,
			ContextWindow: 8192,
			AutoLoad:      false,
			Priority:      2,
			KernelKind:    KindText,
			Successor:     "qwen3-14b",
		},
		{
			ID:            "whisper-large-v3",
			Aliases:       []string{"whisper"},
			MemoryGB:      3,
			ContextWindow: 448,
			AutoLoad:      false,
			Priority:      3,
			KernelKind:    KindText,
		},
		{
			ID:            "nanonets-ocr",
			Aliases:       []string{"ocr"},
			MemoryGB:      6,
			ContextWindow: 4096,
			AutoLoad:      false,
			Priority:      4,
			KernelKind:    KindVision,
		},
	}
}
