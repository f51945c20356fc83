// Package model is the in-memory node model the delta engine replicates:
// languages (classifiers and features), nodes, partitions and the forest,
// plus the notifications every mutation raises.
package model

import (
	"fmt"

	"github.com/cespare/xxhash"
)

// MetaPointer addresses a language element the way the wire does.
type MetaPointer struct {
	Language string `json:"language" yaml:"language"`
	Version  string `json:"version" yaml:"version"`
	Key      string `json:"key" yaml:"key"`
}

func (mp MetaPointer) String() string {
	return fmt.Sprintf("%s@%s:%s", mp.Language, mp.Version, mp.Key)
}

// CompressedMetaPointer is a fixed-size comparable digest of a MetaPointer.
type CompressedMetaPointer [3]uint64

func Compress(mp MetaPointer) CompressedMetaPointer {
	return CompressedMetaPointer{
		xxhash.Sum64String(mp.Language),
		xxhash.Sum64String(mp.Version),
		xxhash.Sum64String(mp.Key),
	}
}

type FeatureKind byte

const (
	PropertyKind    FeatureKind = 'P'
	ContainmentKind FeatureKind = 'C'
	ReferenceKind   FeatureKind = 'R'
)

func (k FeatureKind) String() string {
	switch k {
	case PropertyKind:
		return "property"
	case ContainmentKind:
		return "containment"
	case ReferenceKind:
		return "reference"
	default:
		return "unknown"
	}
}

type DataType byte

const (
	NoDataType DataType = 0
	String     DataType = 'S'
	Integer    DataType = 'I'
	Boolean    DataType = 'B'
)

type Feature struct {
	Meta     MetaPointer
	Name     string
	Kind     FeatureKind
	Multiple bool
	Optional bool
	// DataType is set for properties only
	DataType DataType
}

func (f *Feature) String() string {
	return f.Name
}

type Classifier struct {
	Meta       MetaPointer
	Name       string
	Partition  bool
	Annotation bool
	Features   []*Feature
}

// Feature finds a feature of the classifier by its key.
func (c *Classifier) Feature(key string) *Feature {
	for _, f := range c.Features {
		if f.Meta.Key == key {
			return f
		}
	}
	return nil
}

func (c *Classifier) HasFeature(f *Feature) bool {
	for _, own := range c.Features {
		if own == f {
			return true
		}
	}
	return false
}

type Language struct {
	Key         string
	Version     string
	Name        string
	Classifiers []*Classifier
}

// Classifier finds a classifier of the language by its key.
func (l *Language) Classifier(key string) *Classifier {
	for _, c := range l.Classifiers {
		if c.Meta.Key == key {
			return c
		}
	}
	return nil
}
