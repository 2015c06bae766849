package flagext

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestByteSize(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out ByteSize
	}{
		{in: "abc"},
		{in: "0", out: 0},
		{in: "1b", out: 1},
		{in: "1K", out: 1 << 10},
		{in: "16KB", out: 16 << 10},
		{in: "1Mb", out: 1 << 20},
	} {
		t.Run(tc.in, func(t *testing.T) {
			var bs ByteSize

			err := bs.Set(tc.in)
			if tc.in == "abc" {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.out, bs)
			require.Equal(t, int(tc.out), bs.Val())
		})
	}
}

func TestByteSizeYAML(t *testing.T) {
	var cfg struct {
		Size ByteSize `yaml:"size"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("size: 32KB\n"), &cfg))
	require.Equal(t, ByteSize(32<<10), cfg.Size)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.Equal(t, "size: 32KB\n", string(out))
}

func TestConfigFiles(t *testing.T) {
	var files ConfigFiles
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&files, "config.file", "")
	require.NoError(t, fs.Parse([]string{"-config.file=a.yaml", "-config.file=b.yaml, c.yaml"}))
	require.Equal(t, ConfigFiles{"a.yaml", "b.yaml", "c.yaml"}, files)
	require.Equal(t, "a.yaml,b.yaml,c.yaml", files.String())

	require.Error(t, files.Set("d.yaml,,e.yaml"))
}

func TestConfigFiles_Apply(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.yaml")
	second := filepath.Join(dir, "second.yaml")
	require.NoError(t, os.WriteFile(first, []byte("size: 1KB\nname: first\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("name: second\n"), 0o644))

	var cfg struct {
		Size ByteSize `yaml:"size"`
		Name string   `yaml:"name"`
	}
	require.NoError(t, ConfigFiles{first, second}.Apply(&cfg))
	require.Equal(t, 1024, cfg.Size.Val())
	require.Equal(t, "second", cfg.Name)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("other: 1\n"), 0o644))
	require.Error(t, ConfigFiles{unknown}.Apply(&cfg))

	require.Error(t, ConfigFiles{filepath.Join(dir, "missing.yaml")}.Apply(&cfg))
}
