package locators

import (
	"insights-exporter/internal/entity"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "locators.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	table := Default()

	assert.Len(t, table.Names(), len(defaults))

	for _, name := range table.Names() {
		loc := table.Get(name)
		assert.Equal(t, string(name), loc.Name)
		assert.NotEmpty(t, loc.Value, name)
	}

	tile := table.Get(Tile).With("Payments summary")
	assert.Equal(t, "section[aria-label='Payments summary']", tile.Value)
	assert.Equal(t, entity.StrategyCSS, tile.Strategy)

	assert.Equal(t, "lookerFrame", table.Get(DashboardFrame).With("lookerFrame").Value)
}

func TestDefaultIsACopy(t *testing.T) {
	first := Default()
	require.NoError(t, first.Override(map[Name]entity.Locator{
		UpdateButton: {Strategy: entity.StrategyCSS, Value: "button.run"},
	}))

	assert.NotEqual(t, "button.run", Default().Get(UpdateButton).Value)
}

func TestGetUnknownPanics(t *testing.T) {
	assert.PanicsWithValue(t, `locators: unknown name "nope"`, func() {
		Default().Get("nope")
	})
}

func TestNamesSorted(t *testing.T) {
	names := Default().Names()

	for i := 1; i < len(names); i++ {
		assert.Less(t, string(names[i-1]), string(names[i]))
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		table, err := LoadFile("")

		require.NoError(t, err)
		assert.Equal(t, Default().Get(ExportBody), table.Get(ExportBody))
	})

	t.Run("override", func(t *testing.T) {
		path := writeFile(t, `
update_button:
  strategy: xpath
  value: //button[text()='Run']
`)

		table, err := LoadFile(path)

		require.NoError(t, err)
		assert.Equal(t, entity.Locator{
			Name:     "update_button",
			Strategy: entity.StrategyXPath,
			Value:    "//button[text()='Run']",
		}, table.Get(UpdateButton))
		assert.Equal(t, Default().Get(LoginSubmit), table.Get(LoginSubmit))
	})

	failures := map[string]string{
		"unknown name": `
not_a_locator:
  strategy: css
  value: div
`,
		"invalid strategy": `
export_body:
  strategy: text
  value: pre
`,
		"empty value": `
export_body:
  strategy: css
  value: ""
`,
		"malformed yaml": "export_body: [",
	}

	for name, content := range failures {
		t.Run(name, func(t *testing.T) {
			table, err := LoadFile(writeFile(t, content))

			require.Error(t, err)
			assert.Nil(t, table)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))

		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
