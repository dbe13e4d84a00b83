// Package models names the classes behind the 0-based labels that
// multiclass NMS returns.
package models

import (
	"strings"

	"github.com/pkg/errors"
)

// LabelSet identifies a dataset's foreground class list.
type LabelSet string

const (
	// LabelSetNone leaves labels unnamed.
	LabelSetNone LabelSet = ""
	// LabelSetCOCO is the 80 COCO classes.
	LabelSetCOCO LabelSet = "coco"
	// LabelSetVOC is the 20 Pascal VOC classes.
	LabelSetVOC LabelSet = "voc"
	// LabelSetDOTA is the 15 DOTA v1.0 aerial classes, the usual rotated
	// detection benchmark.
	LabelSetDOTA LabelSet = "dota"
)

// ErrUnknownLabelSet is returned for label set names that are not registered.
var ErrUnknownLabelSet = errors.New("unknown label set")

// ParseLabelSet accepts "", "none", "coco", "voc" and "dota",
// case-insensitively.
func ParseLabelSet(s string) (LabelSet, error) {
	switch set := LabelSet(strings.ToLower(strings.TrimSpace(s))); set {
	case LabelSetNone, "none":
		return LabelSetNone, nil
	case LabelSetCOCO, LabelSetVOC, LabelSetDOTA:
		return set, nil
	default:
		return LabelSetNone, errors.Wrapf(ErrUnknownLabelSet, "%q", s)
	}
}
