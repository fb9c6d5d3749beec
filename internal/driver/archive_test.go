package driver_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/driver"
	"scatha/internal/ir"
)

func runPipeline(t *testing.T) *driver.Result {
	t.Helper()
	ctx := ir.NewContext()
	m := buildAdd(ctx)
	inv := &driver.Invocation{OptLevel: 0, Target: driver.TargetExecutable}
	result, err := inv.Run(context.Background(), m)
	require.NoError(t, err)
	return result
}

func TestWriteExecutablePrependsShellHeader(t *testing.T) {
	result := runPipeline(t)
	var buf bytes.Buffer
	require.NoError(t, driver.WriteExecutable(&buf, result.Program, true))
	require.True(t, strings.HasPrefix(buf.String(), "#!/usr/bin/env scatha-vm\n"))
	require.True(t, strings.HasSuffix(buf.String(), string(result.Program.Code)))
}

func TestWriteExecutableOmitsShellHeaderWhenNotRequested(t *testing.T) {
	result := runPipeline(t)
	var buf bytes.Buffer
	require.NoError(t, driver.WriteExecutable(&buf, result.Program, false))
	require.Equal(t, result.Program.Code, buf.Bytes())
}

func TestWriteBinaryArchiveRoundTripsEntries(t *testing.T) {
	result := runPipeline(t)
	var buf bytes.Buffer
	require.NoError(t, driver.WriteBinaryArchive(&buf, result.Program, "debug info here"))

	entries := readTarEntries(t, &buf)
	require.Equal(t, result.Program.Code, entries["executable"])
	require.Contains(t, string(entries["sym.txt"]), "add_one")
	require.Equal(t, "debug info here", string(entries["dbgsym.txt"]))
}

func TestWriteBinaryArchiveOmitsDbgsymWhenEmpty(t *testing.T) {
	result := runPipeline(t)
	var buf bytes.Buffer
	require.NoError(t, driver.WriteBinaryArchive(&buf, result.Program, ""))

	entries := readTarEntries(t, &buf)
	_, ok := entries["dbgsym.txt"]
	require.False(t, ok)
}

func TestWriteStaticLibraryIncludesTextualIR(t *testing.T) {
	result := runPipeline(t)
	var buf bytes.Buffer
	require.NoError(t, driver.WriteStaticLibrary(&buf, result.Program, result.Module))

	entries := readTarEntries(t, &buf)
	require.Contains(t, string(entries["code.scir"]), "add_one")
	require.Contains(t, string(entries["sym.txt"]), "add_one")
}

func readTarEntries(t *testing.T, r io.Reader) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = data
	}
	return out
}
