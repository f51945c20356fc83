package config

import (
	"os"

	"github.com/drpcorg/lwdelta/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidLanguage = errors.New("lwdelta: invalid language")

type languageFile struct {
	Languages []languageDef `yaml:"languages" validate:"required,min=1,dive"`
}

type languageDef struct {
	Key         string          `yaml:"key" validate:"required"`
	Version     string          `yaml:"version" validate:"required"`
	Name        string          `yaml:"name"`
	Classifiers []classifierDef `yaml:"classifiers" validate:"dive"`
}

type classifierDef struct {
	Key        string       `yaml:"key" validate:"required"`
	Name       string       `yaml:"name"`
	Partition  bool         `yaml:"partition"`
	Annotation bool         `yaml:"annotation"`
	Features   []featureDef `yaml:"features" validate:"dive"`
}

type featureDef struct {
	Key      string `yaml:"key" validate:"required"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind" validate:"oneof=property containment reference"`
	Type     string `yaml:"type" validate:"omitempty,oneof=string integer boolean"`
	Multiple bool   `yaml:"multiple"`
	Optional bool   `yaml:"optional"`
}

var kinds = map[string]model.FeatureKind{
	"property":    model.PropertyKind,
	"containment": model.ContainmentKind,
	"reference":   model.ReferenceKind,
}

var dataTypes = map[string]model.DataType{
	"":        model.NoDataType,
	"string":  model.String,
	"integer": model.Integer,
	"boolean": model.Boolean,
}

// ParseLanguages reads language definitions:
//
//	languages:
//	  - key: shapes
//	    version: "1"
//	    classifiers:
//	      - key: Geometry
//	        partition: true
//	        features:
//	          - {key: Geometry-parts, name: parts, kind: containment, multiple: true}
func ParseLanguages(data []byte) ([]*model.Language, error) {
	var file languageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(ErrInvalidLanguage, "%v", err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, errors.Wrapf(ErrInvalidLanguage, "%v", err)
	}
	langs := make([]*model.Language, 0, len(file.Languages))
	for _, ld := range file.Languages {
		lang := &model.Language{Key: ld.Key, Version: ld.Version, Name: ld.Name}
		for _, cd := range ld.Classifiers {
			c := &model.Classifier{
				Meta:       model.MetaPointer{Language: ld.Key, Version: ld.Version, Key: cd.Key},
				Name:       or(cd.Name, cd.Key),
				Partition:  cd.Partition,
				Annotation: cd.Annotation,
			}
			for _, fd := range cd.Features {
				f := &model.Feature{
					Meta:     model.MetaPointer{Language: ld.Key, Version: ld.Version, Key: fd.Key},
					Name:     or(fd.Name, fd.Key),
					Kind:     kinds[fd.Kind],
					Multiple: fd.Multiple,
					Optional: fd.Optional,
				}
				if f.Kind == model.PropertyKind {
					if fd.Type == "" {
						return nil, errors.Wrapf(ErrInvalidLanguage, "property %s has no type", fd.Key)
					}
					f.DataType = dataTypes[fd.Type]
				}
				c.Features = append(c.Features, f)
			}
			lang.Classifiers = append(lang.Classifiers, c)
		}
		langs = append(langs, lang)
	}
	return langs, nil
}

// LoadLanguages reads a language file and indexes it.
func LoadLanguages(path string) (*model.SharedKeyedMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read languages")
	}
	langs, err := ParseLanguages(data)
	if err != nil {
		return nil, err
	}
	return model.NewSharedKeyedMap(langs...)
}

func or(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
