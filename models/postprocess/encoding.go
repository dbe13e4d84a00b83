package postprocess

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind is the box parametrization a detector head emits.
type Kind int

const (
	// KindAuto infers the kind from the box column width: a multiple of four
	// is read as axis-aligned, anything else as rotated. Ambiguous layouts
	// (e.g. rotated per-class boxes for four score columns) are misread, so
	// prefer an explicit kind.
	KindAuto Kind = iota
	// KindAxisAligned boxes are (x1, y1, x2, y2).
	KindAxisAligned
	// KindRotated boxes are (cx, cy, w, h, θ) with θ in radians.
	KindRotated
)

func (k Kind) String() string {
	switch k {
	case KindAxisAligned:
		return "axis_aligned"
	case KindRotated:
		return "rotated"
	default:
		return "auto"
	}
}

// Sharing says whether one box serves all classes or each class has its own.
type Sharing int

const (
	// SharingAuto picks whichever layout the column width matches.
	SharingAuto Sharing = iota
	// SharingShared is one box per candidate.
	SharingShared
	// SharingPerClass is one box block per class per candidate.
	SharingPerClass
)

func (s Sharing) String() string {
	switch s {
	case SharingShared:
		return "shared"
	case SharingPerClass:
		return "per_class"
	default:
		return "auto"
	}
}

// Background locates the background column of the score matrix.
type Background int

const (
	// BackgroundDefault uses the convention of the selected path: the last
	// column for axis-aligned boxes, the first for rotated boxes.
	BackgroundDefault Background = iota
	// BackgroundFirst reserves column 0.
	BackgroundFirst
	// BackgroundLast reserves the last column.
	BackgroundLast
)

func (b Background) String() string {
	switch b {
	case BackgroundFirst:
		return "first"
	case BackgroundLast:
		return "last"
	default:
		return "default"
	}
}

// Encoding describes how multi_bboxes and multi_scores are laid out.
// The zero value reproduces the column-width inference of older detectors.
type Encoding struct {
	Kind       Kind
	Sharing    Sharing
	Background Background
}

// ParseKind parses "auto", "axis_aligned" or "rotated".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "axis_aligned", "axis", "hbb":
		return KindAxisAligned, nil
	case "rotated", "obb":
		return KindRotated, nil
	default:
		return KindAuto, errors.Wrapf(ErrInvalidBoxEncoding, "unknown box kind %q", s)
	}
}

// ParseSharing parses "auto", "shared" or "per_class".
func ParseSharing(s string) (Sharing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SharingAuto, nil
	case "shared":
		return SharingShared, nil
	case "per_class":
		return SharingPerClass, nil
	default:
		return SharingAuto, errors.Wrapf(ErrInvalidBoxEncoding, "unknown box sharing %q", s)
	}
}

// ParseBackground parses "default", "first" or "last".
func ParseBackground(s string) (Background, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return BackgroundDefault, nil
	case "first":
		return BackgroundFirst, nil
	case "last":
		return BackgroundLast, nil
	default:
		return BackgroundDefault, errors.Wrapf(ErrInvalidBoxEncoding, "unknown background slot %q", s)
	}
}

// layout is an Encoding resolved against concrete matrix shapes.
type layout struct {
	kind       Kind
	perClass   bool
	background Background
	scoreCols  int
	boxWidth   int
}

// Slot is a foreground score column and the label it reports as.
type Slot struct {
	Column int
	Label  int
}

// resolve settles every Auto field of e and checks the widths agree.
//
// Accepted box widths, for S score columns:
//   - axis-aligned: 4 shared, 4·(S-1) per class (one block per label)
//   - rotated: 5 shared, 5·S per class (one block per score column)
func (e Encoding) resolve(boxCols, scoreCols int) (layout, error) {
	if scoreCols < 2 {
		return layout{}, errors.Wrapf(ErrShapeMismatch, "scores need a background and at least one class column, got %d", scoreCols)
	}

	kind := e.Kind
	if kind == KindAuto {
		if boxCols > 0 && boxCols%4 == 0 {
			kind = KindAxisAligned
		} else {
			kind = KindRotated
		}
	}

	var shared, perClass int
	switch kind {
	case KindAxisAligned:
		shared, perClass = 4, 4*(scoreCols-1)
	case KindRotated:
		shared, perClass = 5, 5*scoreCols
	default:
		return layout{}, errors.Wrapf(ErrInvalidBoxEncoding, "unknown box kind %d", kind)
	}

	l := layout{kind: kind, background: e.Background, scoreCols: scoreCols, boxWidth: shared}
	switch e.Sharing {
	case SharingShared:
		if boxCols != shared {
			return layout{}, errors.Wrapf(ErrInvalidBoxEncoding, "shared %s boxes need %d columns, got %d", kind, shared, boxCols)
		}
	case SharingPerClass:
		if boxCols != perClass {
			return layout{}, errors.Wrapf(ErrInvalidBoxEncoding, "per-class %s boxes need %d columns, got %d", kind, perClass, boxCols)
		}
		l.perClass = true
	default:
		switch boxCols {
		case shared:
		case perClass:
			l.perClass = true
		default:
			return layout{}, errors.Wrapf(ErrInvalidBoxEncoding,
				"%d box columns fit neither %d (shared) nor %d (per-class) %s boxes", boxCols, shared, perClass, kind)
		}
	}

	if l.background == BackgroundDefault {
		if kind == KindAxisAligned {
			l.background = BackgroundLast
		} else {
			l.background = BackgroundFirst
		}
	}
	return l, nil
}

// foreground lists the score columns that produce detections.
//
// The rotated path with the background in column 0 walks columns
// 1..S-2, leaving the trailing column out, as rotated detector heads
// trained with that convention expect.
func (l layout) foreground() []Slot {
	first, last, shift := 0, l.scoreCols-2, 0
	if l.background == BackgroundFirst {
		first, last, shift = 1, l.scoreCols-1, 1
		if l.kind == KindRotated {
			last = l.scoreCols - 2
		}
	}

	slots := make([]Slot, 0, last-first+1)
	for c := first; c <= last; c++ {
		slots = append(slots, Slot{Column: c, Label: c - shift})
	}
	return slots
}

// box returns the box parameters of candidate i for the given foreground slot.
func (l layout) box(boxes Matrix, i int, s Slot) []float32 {
	row := boxes.Row(i)
	if !l.perClass {
		return row
	}
	block := s.Label
	if l.kind == KindRotated {
		block = s.Column
	}
	return row[block*l.boxWidth : (block+1)*l.boxWidth]
}
