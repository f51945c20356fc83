package model

import "errors"

var (
	ErrUnsetFeature   = errors.New("lwdelta: feature is not set")
	ErrInvalidValue   = errors.New("lwdelta: invalid value for the feature")
	ErrInvalidIndex   = errors.New("lwdelta: index out of range")
	ErrUnknownFeature = errors.New("lwdelta: unknown feature")
	ErrNotContained   = errors.New("lwdelta: node is not contained there")
	ErrCycle          = errors.New("lwdelta: node would contain itself")

	ErrDuplicateMetaPointer = errors.New("lwdelta: duplicate meta-pointer in language set")
	ErrPartitionExists      = errors.New("lwdelta: partition already in the forest")
	ErrNotPartition         = errors.New("lwdelta: node is not a partition root")
	ErrPartitionUnknown     = errors.New("lwdelta: partition is not in the forest")
)
