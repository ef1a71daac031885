package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
)

func testApp(out *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:      "transcribe",
		Writer:    out,
		ErrWriter: out,
		Commands:  []*cli.Command{extractCommand(), infoCommand()},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func TestExtract_RequiresOnePath(t *testing.T) {
	var out bytes.Buffer
	err := testApp(&out).Run([]string{"transcribe", "extract", "--pipeline", "missing.yaml"})
	require.Error(t, err)

	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 64, exit.ExitCode())
}

func TestInfo_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	var out bytes.Buffer
	err := testApp(&out).Run([]string{"transcribe", "info", path})
	assert.ErrorIs(t, err, validator.ErrInvalidDocument)
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	sink := progressPrinter(&out)
	sink(models.ProgressEvent{Phase: models.PhaseStart, TotalPages: 4, Message: "Processing 4 page(s)..."})
	sink(models.ProgressEvent{Phase: models.PhasePageDone, PageIndex: 2, TotalPages: 4, Message: "OCR succeeded for page 2 of 4."})

	assert.Equal(t, "Processing 4 page(s)...\n[ 50%] OCR succeeded for page 2 of 4.\n", out.String())
}
