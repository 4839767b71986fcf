// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Aaa int    `json:"aaa" yaml:"aaa"`
	Bbb string `json:"bbb" yaml:"bbb"`
}

type testConfig struct {
	Foo int      `json:"foo" yaml:"foo"`
	Bar string   `json:"bar" yaml:"bar"`
	Qux []string `json:"qux" yaml:"qux"`
	Box nested   `json:"box" yaml:"box"`
	Boq *nested  `json:"boq" yaml:"boq"`
}

func TestLoadData(t *testing.T) {
	tests := []struct {
		input  string
		output testConfig
		err    bool
	}{
		{
			input:  `{"foo": 42}`,
			output: testConfig{Foo: 42},
		},
		{
			input: `
# comment
{
	"foo": 1,
	# another comment
	"box": {"aaa": 12, "bbb": "bbb"}
}`,
			output: testConfig{Foo: 1, Box: nested{Aaa: 12, Bbb: "bbb"}},
		},
		{
			input:  `{"qux": ["aaa", "bbb"], "boq": {"aaa": 1}}`,
			output: testConfig{Qux: []string{"aaa", "bbb"}, Boq: &nested{Aaa: 1}},
		},
		{
			input: `{"foobar": 42}`,
			err:   true,
		},
		{
			input: `{"box": {"ccc": 1}}`,
			err:   true,
		},
		{
			input: `{"foo": "str"}`,
			err:   true,
		},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			var cfg testConfig
			err := LoadData([]byte(test.input), &cfg)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.output, cfg)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	var cfg testConfig
	require.NoError(t, LoadYAML([]byte("foo: 3\nqux: [a, b]\nbox:\n  aaa: 5\n"), &cfg))
	assert.Equal(t, testConfig{Foo: 3, Qux: []string{"a", "b"}, Box: nested{Aaa: 5}}, cfg)

	assert.Error(t, LoadYAML([]byte("unknown: 1\n"), &cfg))
	cfg = testConfig{Foo: 1}
	require.NoError(t, LoadYAML(nil, &cfg))
	assert.Equal(t, 1, cfg.Foo)
}

func TestLoadBadType(t *testing.T) {
	i := 0
	for _, cfg := range []any{1, &i, struct{}{}} {
		assert.EqualError(t, LoadData([]byte("{}"), cfg), "config type is not pointer to struct")
		assert.EqualError(t, LoadYAML([]byte("{}"), cfg), "config type is not pointer to struct")
	}
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := testConfig{Foo: 7, Bar: "bar", Boq: &nested{Bbb: "x"}}
	file := filepath.Join(dir, "cfg.json")
	require.NoError(t, SaveFile(file, want))
	var got testConfig
	require.NoError(t, LoadFile(file, &got))
	assert.Equal(t, want, got)

	assert.Error(t, LoadFile("", &got))
	assert.Error(t, LoadFile(filepath.Join(dir, "missing.yaml"), &got))
}
