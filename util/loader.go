package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Payload is the raw detector head output for one image.
type Payload struct {
	// Boxes holds one row of box parameters per candidate.
	Boxes [][]float32 `yaml:"boxes" json:"boxes"`
	// Scores holds one row of class scores per candidate, background included.
	Scores [][]float32 `yaml:"scores" json:"scores"`
	// ScoreFactors optionally scales each candidate's scores.
	ScoreFactors []float32 `yaml:"score_factors,omitempty" json:"score_factors,omitempty"`
}

// PayloadFile is a Payload read from disk.
type PayloadFile struct {
	// Path is the path to the payload file.
	Path string
	// Payload is the decoded content.
	Payload Payload
	// Frame is the frame number taken from the file name.
	Frame int
}

// Matrices converts the payload into the matrices MulticlassNMS consumes.
//
// Returns:
//   - postprocess.Matrix: The box matrix.
//   - postprocess.Matrix: The score matrix.
//   - error: ErrShapeMismatch if a matrix is ragged.
func (p Payload) Matrices() (postprocess.Matrix, postprocess.Matrix, error) {
	boxes, err := postprocess.MatrixFromRows(p.Boxes)
	if err != nil {
		return postprocess.Matrix{}, postprocess.Matrix{}, errors.Wrap(err, "boxes")
	}
	scores, err := postprocess.MatrixFromRows(p.Scores)
	if err != nil {
		return postprocess.Matrix{}, postprocess.Matrix{}, errors.Wrap(err, "scores")
	}
	return boxes, scores, nil
}

// DecodePayload parses a YAML or JSON payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Payload{}, errors.Wrap(err, "decode payload")
	}
	return p, nil
}

// LoadPayload reads a single payload file.
//
// Arguments:
// - path: A .yaml, .yml or .json file.
//
// Returns:
// - Payload: The decoded payload.
// - error: Error if reading or decoding fails.
func LoadPayload(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, errors.Wrapf(err, "read %s", path)
	}
	p, err := DecodePayload(data)
	if err != nil {
		return Payload{}, errors.Wrap(err, path)
	}
	return p, nil
}

// LoadDirectoryPayloads reads all frame-<n> payload files from a directory,
// ordered by frame number.
//
// Arguments:
// - dir: Directory path containing payload files.
//
// Returns:
// - []PayloadFile: The payloads, lowest frame first.
// - error: Error if loading fails.
func LoadDirectoryPayloads(dir string) ([]PayloadFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", dir)
	}

	var payloads []PayloadFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := filepath.Ext(file.Name())
		switch ext {
		case ".yaml", ".yml", ".json":
			frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), "frame-"), ext))
			if err != nil {
				return nil, errors.Wrapf(err, "frame number of %s", file.Name())
			}
			path := filepath.Join(dir, file.Name())
			p, err := LoadPayload(path)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, PayloadFile{
				Path:    path,
				Payload: p,
				Frame:   frame,
			})
		}
	}

	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].Frame < payloads[j].Frame
	})

	return payloads, nil
}
