package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/mastrvec/internal/config"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
)

func TestApp_Commands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"run", "search", "drop"}, names)
}

func quietApp() *cli.App {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	return app
}

func TestSearchCommand_RequiredFlags(t *testing.T) {
	t.Run("query is required", func(t *testing.T) {
		err := quietApp().Run([]string{"mastrvec", "search", "--collection", "solar_anlagen"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query")
	})

	t.Run("collection is required", func(t *testing.T) {
		err := quietApp().Run([]string{"mastrvec", "search", "--query", "Kiel"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection")
	})

	t.Run("bad filter fails before connecting", func(t *testing.T) {
		err := quietApp().Run([]string{"mastrvec", "search", "--collection", "c", "--query", "q", "--where", "leistung>viel"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse filters")
	})
}

func TestRunCommand_MissingConfig(t *testing.T) {
	err := quietApp().Run([]string{"mastrvec", "--config", t.TempDir() + "/missing.yaml", "run"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestIngestCollections(t *testing.T) {
	cfgs := config.DefaultCollections(768)
	cfgs[0].DataDir = "biomasse"
	cfgs[1].Fields = []config.FieldConfig{
		{Name: "id", Type: "int64", Primary: true},
		{Name: "vector", Type: "float_vector"},
		{Name: "bruttoleistung", Type: "double"},
	}
	cfgs[1].Dim = 768

	cols, err := ingestCollections(cfgs)
	require.NoError(t, err)
	require.Len(t, cols, 7)

	assert.Equal(t, "biomasse_anlagen", cols[0].Name)
	assert.Equal(t, "biomasse", cols[0].SubDir)
	assert.Nil(t, cols[0].Fields)
	assert.Equal(t, []string{"*Biomasse*.xml", "*Biogas*.xml", "*Biomethan*.xml"}, cols[0].Patterns)

	require.Len(t, cols[1].Fields, 3)
	assert.Equal(t, schema.KindDouble, cols[1].Fields[2].Kind)
	assert.Equal(t, 768, cols[1].Fields[1].Dim)
}
