package model

import (
	"github.com/pkg/errors"
)

// SharedKeyedMap resolves compressed meta-pointers to the concrete language
// elements of the active language set. It is built once and never mutated,
// so concurrent readers need no locking.
type SharedKeyedMap struct {
	classifiers map[CompressedMetaPointer]*Classifier
	features    map[CompressedMetaPointer]*Feature
	languages   []*Language
}

func NewSharedKeyedMap(languages ...*Language) (*SharedKeyedMap, error) {
	km := &SharedKeyedMap{
		classifiers: make(map[CompressedMetaPointer]*Classifier),
		features:    make(map[CompressedMetaPointer]*Feature),
		languages:   languages,
	}
	for _, lang := range languages {
		for _, c := range lang.Classifiers {
			cmp := Compress(c.Meta)
			if _, dup := km.classifiers[cmp]; dup {
				return nil, errors.Wrapf(ErrDuplicateMetaPointer, "classifier %s", c.Meta)
			}
			km.classifiers[cmp] = c
			for _, f := range c.Features {
				fcmp := Compress(f.Meta)
				if prev, dup := km.features[fcmp]; dup && prev != f {
					return nil, errors.Wrapf(ErrDuplicateMetaPointer, "feature %s", f.Meta)
				}
				km.features[fcmp] = f
			}
		}
	}
	return km, nil
}

func (km *SharedKeyedMap) Languages() []*Language {
	return km.languages
}

func (km *SharedKeyedMap) Classifier(mp MetaPointer) (*Classifier, error) {
	c, ok := km.classifiers[Compress(mp)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFeature, "classifier %s", mp)
	}
	return c, nil
}

func (km *SharedKeyedMap) feature(mp MetaPointer, kind FeatureKind) (*Feature, error) {
	f, ok := km.features[Compress(mp)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFeature, "%s %s", kind, mp)
	}
	if f.Kind != kind {
		return nil, errors.Wrapf(ErrUnknownFeature, "%s is a %s, not a %s", mp, f.Kind, kind)
	}
	return f, nil
}

func (km *SharedKeyedMap) Property(mp MetaPointer) (*Feature, error) {
	return km.feature(mp, PropertyKind)
}

func (km *SharedKeyedMap) Containment(mp MetaPointer) (*Feature, error) {
	return km.feature(mp, ContainmentKind)
}

func (km *SharedKeyedMap) Reference(mp MetaPointer) (*Feature, error) {
	return km.feature(mp, ReferenceKind)
}
