package backup

import (
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
)

func barTemplate(description string) string {
	return fmt.Sprintf(`{{ "%s" }} {{ bar . "[" "=" ">" " " "]"}} {{speed . }} {{percent . }} {{rtime . " ETA"}}`, description)
}

// ProgressReader wraps an io.Reader with a progress bar
type ProgressReader struct {
	reader io.Reader
	bar    *pb.ProgressBar
}

// NewProgressReader creates a new progress reader
func NewProgressReader(r io.Reader, size int64, description string) *ProgressReader {
	bar := pb.New64(size)
	bar.Set(pb.SIBytesPrefix, true)
	bar.SetTemplateString(barTemplate(description))
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.Start()

	return &ProgressReader{
		reader: bar.NewProxyReader(r),
		bar:    bar,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	return pr.reader.Read(p)
}

// Close finishes the progress bar
func (pr *ProgressReader) Close() error {
	pr.bar.Finish()
	return nil
}

// IndeterminateProgress shows a spinner for operations without known size
type IndeterminateProgress struct {
	spinner *pb.ProgressBar
}

// NewIndeterminateProgress creates a new indeterminate progress indicator
func NewIndeterminateProgress(description string) *IndeterminateProgress {
	tmpl := fmt.Sprintf(`{{ "%s" }} {{ cycle . "⠋" "⠙" "⠹" "⠸" "⠼" "⠴" "⠦" "⠧" "⠇" "⠏" }}`, description)

	spinner := pb.New(0)
	spinner.SetTemplateString(tmpl)
	spinner.SetRefreshRate(100 * time.Millisecond)
	spinner.Start()

	return &IndeterminateProgress{spinner: spinner}
}

// Stop stops the spinner
func (ip *IndeterminateProgress) Stop() {
	ip.spinner.Finish()
}
