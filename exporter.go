package nyx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Exporter defines an export interface.
type Exporter interface {
	Write(est *Estimate, res *Residual) error
	Close() error
}

// CSVExporter writes one line per estimate and residual pair. The columns are, in this order:
// the epoch, the state deviation, the covariance diagonal, the Frobenius norm of the STM, the
// predicted flag, the prefit residuals and the postfit residuals.
type CSVExporter struct {
	delimiter string
	hdlr      *os.File
	stateSize int
	msrSize   int
}

// NewCSVExporter initializes a new CSV export.
func NewCSVExporter(stateHeaders, msrHeaders []string, dir, filename string) (e *CSVExporter, err error) {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return
	}
	delimiter := ","
	// Header
	hdr := []string{"epoch"}
	hdr = append(hdr, stateHeaders...)
	for _, h := range stateHeaders {
		hdr = append(hdr, "cov_"+h)
	}
	hdr = append(hdr, "stm_norm", "predicted")
	for _, h := range msrHeaders {
		hdr = append(hdr, "prefit_"+h)
	}
	for _, h := range msrHeaders {
		hdr = append(hdr, "postfit_"+h)
	}
	if _, err = f.WriteString(fmt.Sprintf("# Creation date (UTC): %s\n%s\n", time.Now().UTC(), strings.Join(hdr, delimiter))); err != nil {
		f.Close()
		return nil, err
	}
	e = &CSVExporter{delimiter, f, len(stateHeaders), len(msrHeaders)}
	return
}

// Write writes the estimate and its residual to the CSV file. The residual may be nil for a
// predicted estimate.
func (e *CSVExporter) Write(est *Estimate, res *Residual) error {
	if est.Dim() != e.stateSize {
		return fmt.Errorf("estimate has %d components, expected %d", est.Dim(), e.stateSize)
	}
	vals := make([]string, 0, 1+2*e.stateSize+2+2*e.msrSize)
	vals = append(vals, est.Epoch.UTC().Format(time.RFC3339Nano))
	for i := 0; i < e.stateSize; i++ {
		vals = append(vals, fmt.Sprintf("%e", est.State.AtVec(i)))
	}
	for i := 0; i < e.stateSize; i++ {
		vals = append(vals, fmt.Sprintf("%e", est.Covar.At(i, i)))
	}
	vals = append(vals, fmt.Sprintf("%e", mat.Norm(est.STM, 2)), fmt.Sprintf("%t", est.Predicted))
	if res == nil {
		for i := 0; i < 2*e.msrSize; i++ {
			vals = append(vals, "")
		}
	} else {
		if res.Prefit.Len() != e.msrSize {
			return fmt.Errorf("residual has %d components, expected %d", res.Prefit.Len(), e.msrSize)
		}
		for _, r := range []*mat.VecDense{res.Prefit, res.Postfit} {
			for i := 0; i < e.msrSize; i++ {
				vals = append(vals, fmt.Sprintf("%e", r.AtVec(i)))
			}
		}
	}
	_, err := e.hdlr.WriteString(strings.Join(vals, e.delimiter) + "\n")
	return err
}

// WriteRawLn writes a raw line to the CSV file.
func (e *CSVExporter) WriteRawLn(s string) error {
	_, err := e.hdlr.WriteString(s + "\n")
	return err
}

// Name returns the path of the CSV file.
func (e *CSVExporter) Name() string {
	return e.hdlr.Name()
}

// Close writes the closing date and closes the file, even if that last line could not be written.
func (e *CSVExporter) Close() error {
	werr := e.WriteRawLn(fmt.Sprintf("# Closing date (UTC): %s", time.Now().UTC()))
	if err := e.hdlr.Close(); werr == nil {
		return err
	}
	return werr
}
