// Package api holds the wire types shared by the NMS server and client.
package api

import (
	"github.com/nvr-ai/go-nms/config"
	"github.com/nvr-ai/go-nms/models"
	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/nvr-ai/go-nms/util"
	"github.com/pkg/errors"
)

// Request is the body of POST /api/nms. Unset optional fields fall back to
// the server configuration.
type Request struct {
	util.Payload `yaml:",inline"`

	ScoreThreshold *float32         `json:"score_threshold,omitempty" yaml:"score_threshold,omitempty"`
	MaxNum         *int             `json:"max_num,omitempty" yaml:"max_num,omitempty"`
	Encoding       *config.Encoding `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// Postprocess converts the request into a postprocessor request.
func (r Request) Postprocess() (postprocess.Request, error) {
	boxes, scores, err := r.Matrices()
	if err != nil {
		return postprocess.Request{}, err
	}
	out := postprocess.Request{
		Boxes:          boxes,
		Scores:         scores,
		ScoreFactors:   r.ScoreFactors,
		ScoreThreshold: r.ScoreThreshold,
		MaxNum:         r.MaxNum,
	}
	if r.Encoding != nil {
		enc, err := r.Encoding.Parse()
		if err != nil {
			return postprocess.Request{}, err
		}
		out.Encoding = &enc
	}
	return out, nil
}

// Response is the body of a successful POST /api/nms.
type Response struct {
	// ID identifies the request in server logs.
	ID string `json:"id" yaml:"id"`
	// Width is 5 for axis-aligned rows and 9 for polygon rows.
	Width int `json:"width" yaml:"width"`
	// Detections holds one row per detection, score last.
	Detections [][]float32 `json:"detections" yaml:"detections"`
	// Labels holds the 0-based class of each row.
	Labels []int `json:"labels" yaml:"labels"`
	// Names holds the class name of each row when a label set is configured.
	Names []string `json:"names,omitempty" yaml:"names,omitempty"`
}

// NameLabels fills Names from set. LabelSetNone leaves Names empty.
func (r *Response) NameLabels(set models.LabelSet) {
	if set == models.LabelSetNone {
		return
	}
	r.Names = models.DefaultClassManager.Names(set, r.Labels)
}

// NewResponse builds a Response from postprocessor output.
func NewResponse(id string, dets postprocess.Detections) Response {
	return Response{
		ID:         id,
		Width:      dets.Width(),
		Detections: dets.Boxes.ToRows(),
		Labels:     dets.Labels,
	}
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
	// Kind is postprocess.ErrorKind of the failure, when known.
	Kind string `json:"kind,omitempty"`
}

var kinds = map[string]error{
	"unsupported_algorithm": postprocess.ErrUnsupportedAlgorithm,
	"invalid_box_encoding":  postprocess.ErrInvalidBoxEncoding,
	"shape_mismatch":        postprocess.ErrShapeMismatch,
	"invalid_config":        postprocess.ErrInvalidConfig,
}

// Err turns the response back into an error that matches the postprocess
// sentinel named by Kind.
func (e ErrorResponse) Err() error {
	if sentinel, ok := kinds[e.Kind]; ok {
		return errors.Wrap(sentinel, e.Error)
	}
	return errors.New(e.Error)
}
