package models

import (
	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// Index is the 0-based label NMS reports. The background column never
	// gets one.
	Index int
	// Name is the human-readable label.
	Name string
}

// OutputClassSet ties a label set to its full list of labels.
type OutputClassSet struct {
	Set     LabelSet
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// ClassManager holds all registered class sets.
type ClassManager struct {
	sets map[LabelSet]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(allSets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[LabelSet]*OutputClassSet)}
	for _, set := range allSets {
		set.BuildNameIndexMap()
		mgr.sets[set.Set] = set
	}
	return mgr
}

// GetName returns the class name for a given set and label.
func (m *ClassManager) GetName(set LabelSet, idx int) (string, error) {
	s, ok := m.sets[set]
	if !ok {
		return "", errors.Wrapf(ErrUnknownLabelSet, "%q not registered", set)
	}
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("label %d out of range for set %q", idx, set)
	}
	return s.Classes[idx].Name, nil
}

// GetIndex returns the label for a given set and class name.
func (m *ClassManager) GetIndex(set LabelSet, name string) (int, error) {
	s, ok := m.sets[set]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownLabelSet, "%q not registered", set)
	}
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in set %q", name, set)
	}
	return idx, nil
}

// MapClass maps a label from one set to the class of the same name in
// another.
func (m *ClassManager) MapClass(from LabelSet, idx int, to LabelSet) (OutputClass, error) {
	name, err := m.GetName(from, idx)
	if err != nil {
		return OutputClass{}, err
	}
	toIdx, err := m.GetIndex(to, name)
	if err != nil {
		return OutputClass{}, err
	}
	return OutputClass{Index: toIdx, Name: name}, nil
}

// Names returns the class name of every label, "" where a label is out of
// range. An unregistered set yields nil.
func (m *ClassManager) Names(set LabelSet, labels []int) []string {
	s, ok := m.sets[set]
	if !ok {
		return nil
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		if l >= 0 && l < len(s.Classes) {
			names[i] = s.Classes[l].Name
		}
	}
	return names
}

func indexed(names ...string) []OutputClass {
	classes := make([]OutputClass, len(names))
	for i, n := range names {
		classes[i] = OutputClass{Index: i, Name: n}
	}
	return classes
}

// COCOClasses is the 80 COCO classes.
var COCOClasses = OutputClassSet{
	Set: LabelSetCOCO,
	Classes: indexed(
		"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
		"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
		"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
		"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
		"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
		"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
		"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
		"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
		"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
		"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
		"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
		"hair drier", "toothbrush",
	),
}

// VOCClasses is the 20 Pascal VOC classes.
var VOCClasses = OutputClassSet{
	Set: LabelSetVOC,
	Classes: indexed(
		"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat",
		"chair", "cow", "diningtable", "dog", "horse", "motorbike", "person",
		"pottedplant", "sheep", "sofa", "train", "tvmonitor",
	),
}

// DOTAClasses is the 15 DOTA v1.0 classes.
var DOTAClasses = OutputClassSet{
	Set: LabelSetDOTA,
	Classes: indexed(
		"plane", "baseball-diamond", "bridge", "ground-track-field", "small-vehicle",
		"large-vehicle", "ship", "tennis-court", "basketball-court", "storage-tank",
		"soccer-ball-field", "roundabout", "harbor", "swimming-pool", "helicopter",
	),
}

// DefaultClassManager has every built-in set registered.
var DefaultClassManager = NewClassManager(&COCOClasses, &VOCClasses, &DOTAClasses)

// LookupName returns the class name for a given set and label, or "" when
// either is unknown.
func LookupName(set LabelSet, idx int) string {
	name, err := DefaultClassManager.GetName(set, idx)
	if err != nil {
		return ""
	}
	return name
}
