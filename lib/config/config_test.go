package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
)

const sampleYAML = `
archive:
  base_dir: /var/lib/atlas/archive
concurrency:
  global: 10
  per_carrier: 3
carriers:
  - name: Carrier A
    sts_endpoint: https://a.example.com/sts
    transfer_endpoint: https://a.example.com/transfer
    auth_variants: [weak]
  - name: Carrier B
    sts_endpoint: https://b.example.com/sts
    transfer_endpoint: https://b.example.com/transfer
    auth_variants: [ticket, ticket+otp]
    timeouts:
      connect: 5s
    column_map:
      sheet_names: ["Custom Sheet"]
      keywords:
        vsnr: ["policennr"]
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ParsesCarriersAndAppliesDefaults(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/atlas/archive", cfg.Archive.BaseDir)
	require.Equal(t, 10, cfg.Concurrency.Global)
	require.Equal(t, 3, cfg.Concurrency.PerCarrier)
	require.Len(t, cfg.Carriers, 2)

	a, ok := cfg.CarrierByName("Carrier A")
	require.True(t, ok)
	require.Equal(t, DefaultConnectTimeout, a.Timeouts.Connect)
	require.Equal(t, DefaultReadTimeout, a.Timeouts.Read)

	b, ok := cfg.CarrierByName("Carrier B")
	require.True(t, ok)
	require.Equal(t, 5*time.Second, b.Timeouts.Connect)
	require.Equal(t, DefaultReadTimeout, b.Timeouts.Read) // unset field still defaulted
}

func TestLoad_MissingConcurrencyUsesModuleDefaults(t *testing.T) {
	path := writeTemp(t, `
carriers:
  - name: Carrier A
    auth_variants: [weak]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultGlobalConcurrency, cfg.Concurrency.Global)
	require.Equal(t, DefaultPerCarrierConcurrency, cfg.Concurrency.PerCarrier)
}

func TestLoad_DuplicateCarrierNameIsRejected(t *testing.T) {
	path := writeTemp(t, `
carriers:
  - name: Carrier A
    auth_variants: [weak]
  - name: Carrier A
    auth_variants: [strong]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingAuthVariantsIsRejected(t *testing.T) {
	path := writeTemp(t, `
carriers:
  - name: Carrier A
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/atlas.yaml")
	require.Error(t, err)
}

func TestToCarrier_BuildsCarrierIdentity(t *testing.T) {
	cc := CarrierConfig{Name: "Carrier A", STSEndpoint: "https://sts", AuthVariants: []string{"weak", "strong"}}
	c := cc.ToCarrier()
	require.Equal(t, "Carrier A", c.Name)
	require.True(t, c.SupportsVariant(carrier.VariantWeak))
	require.True(t, c.SupportsVariant(carrier.VariantStrong))
	require.False(t, c.SupportsVariant(carrier.VariantCertificate))
}

func TestToColumnMap_OverridesMergeOntoBuiltinDefaults(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	b, ok := cfg.CarrierByName("Carrier B")
	require.True(t, ok)
	cm := b.ToColumnMap()

	require.Contains(t, cm.SheetNames, "Custom Sheet")
	require.Contains(t, cm.Keywords["vsnr"], "policennr")
	// amount keyword is untouched, inherited from the built-in Carrier B entry
	require.NotEmpty(t, cm.Keywords["amount"])
}
