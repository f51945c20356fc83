package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drpcorg/lwdelta/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shapes = `
languages:
  - key: shapes
    version: "1"
    name: Shapes
    classifiers:
      - key: Geometry
        partition: true
        features:
          - {key: Geometry-name, name: name, kind: property, type: string, optional: true}
          - {key: Geometry-parts, name: parts, kind: containment, multiple: true, optional: true}
      - key: Leaf
        features:
          - {key: Leaf-name, name: name, kind: property, type: string}
          - {key: Leaf-peer, name: peer, kind: reference, multiple: true, optional: true}
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("languages: lang.yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", c.Listen.Websocket)
	assert.Equal(t, "/delta", c.Listen.Path)
	assert.Equal(t, time.Second, c.Queue.Timeout)
	assert.Equal(t, 5*time.Minute, c.ReconnectWindow)
	assert.Equal(t, "info", c.LogLevel)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
listen:
  tcp: tcp://0.0.0.0:9000
  metrics: 127.0.0.1:9090
journal:
  dir: /var/lib/lwdelta
  max_len: 1000
reconnect_window: 30s
log_level: debug
languages: lang.yaml
partitions:
  - {id: g, language: shapes, version: "1", classifier: Geometry}
`))
	require.NoError(t, err)
	assert.Empty(t, c.Listen.Websocket)
	assert.Equal(t, "tcp://0.0.0.0:9000", c.Listen.TCP)
	assert.Equal(t, uint64(1000), c.Journal.MaxLen)
	assert.Equal(t, 30*time.Second, c.ReconnectWindow)
	require.Len(t, c.Partitions, 1)
	assert.Equal(t, "Geometry", c.Partitions[0].Classifier)
}

func TestParse_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"no languages": "log_level: info\n",
		"log level":    "languages: x\nlog_level: loud\n",
		"partition":    "languages: x\npartitions:\n  - {id: g}\n",
		"not yaml":     "languages: [",
	} {
		_, err := Parse([]byte(doc))
		assert.True(t, errors.Is(err, ErrInvalidConfig), name)
	}
}

func TestLoadLanguages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lang.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shapes), 0644))
	keyed, err := LoadLanguages(path)
	require.NoError(t, err)

	geometry, err := keyed.Classifier(model.MetaPointer{Language: "shapes", Version: "1", Key: "Geometry"})
	require.NoError(t, err)
	assert.True(t, geometry.Partition)
	assert.Equal(t, "Geometry", geometry.Name)
	parts := geometry.Feature("Geometry-parts")
	require.NotNil(t, parts)
	assert.Equal(t, model.ContainmentKind, parts.Kind)
	assert.True(t, parts.Multiple)

	name, err := keyed.Property(model.MetaPointer{Language: "shapes", Version: "1", Key: "Leaf-name"})
	require.NoError(t, err)
	assert.Equal(t, model.String, name.DataType)
	assert.False(t, name.Optional)

	root, err := Partition{Id: "g", Language: "shapes", Version: "1", Classifier: "Geometry"}.Root(keyed)
	require.NoError(t, err)
	assert.Equal(t, model.NodeId("g"), root.Id())
	_, err = Partition{Id: "l", Language: "shapes", Version: "1", Classifier: "Leaf"}.Root(keyed)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestParseLanguages_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":        "languages: []\n",
		"kind":         "languages:\n  - {key: a, version: '1', classifiers: [{key: C, features: [{key: f, kind: other}]}]}\n",
		"untyped":      "languages:\n  - {key: a, version: '1', classifiers: [{key: C, features: [{key: f, kind: property}]}]}\n",
		"bad type":     "languages:\n  - {key: a, version: '1', classifiers: [{key: C, features: [{key: f, kind: property, type: float}]}]}\n",
		"no version":   "languages:\n  - {key: a}\n",
	} {
		_, err := ParseLanguages([]byte(doc))
		assert.True(t, errors.Is(err, ErrInvalidLanguage), name)
	}
}
