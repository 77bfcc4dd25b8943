// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package embeddings

import (
	"sort"
	"strings"

	"github.com/anush008/fastembed-go"

	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// DefaultModelID is used when no model is configured.
const DefaultModelID = "bge-small-en-v1.5"

// ModelInfo describes a supported embedding model.
type ModelInfo struct {
	// ID is the stable identifier recorded in knowledge bases and index
	// artifacts.
	ID string
	// Dimensions is the vector width the model produces.
	Dimensions int

	fastModel fastembed.EmbeddingModel
}

// models maps stable model ids to fastembed models. Dimension counts must
// match what the ONNX models actually emit; they are recorded in index
// artifacts and checked at open time.
var models = map[string]ModelInfo{
	"bge-small-en-v1.5": {
		ID:         "bge-small-en-v1.5",
		Dimensions: 384,
		fastModel:  fastembed.BGESmallENV15,
	},
	"bge-base-en-v1.5": {
		ID:         "bge-base-en-v1.5",
		Dimensions: 768,
		fastModel:  fastembed.BGEBaseENV15,
	},
	"all-minilm-l6-v2": {
		ID:         "all-minilm-l6-v2",
		Dimensions: 384,
		fastModel:  fastembed.AllMiniLML6V2,
	},
}

// LookupModel resolves a model id to its description.
func LookupModel(id string) (ModelInfo, error) {
	info, ok := models[id]
	if !ok {
		return ModelInfo{}, vderr.New(vderr.CodeEmbedModelUnknown,
			"unknown embedding model "+id+" (supported: "+strings.Join(ModelIDs(), ", ")+")",
			vderr.FieldModelID(id))
	}
	return info, nil
}

// ModelIDs returns the supported model ids in sorted order.
func ModelIDs() []string {
	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
